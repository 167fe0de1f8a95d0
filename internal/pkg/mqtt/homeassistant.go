package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/anicoll/cloudage-integration/internal/pkg/model"
)

const (
	payloadOn    = "ON"
	payloadOff   = "OFF"
	manufacturer = "SmartCloudAge"
	deviceModel  = "MQTT Controller"
)

// Requester drives one output of a device.
type Requester interface {
	Request(ctx context.Context, deviceID string, index int, value bool) error
}

// announcement remembers where a switch was announced so it can be cleared.
type announcement struct {
	deviceID    string
	configTopic string
	stateTopic  string
}

// RegisterDevice announces one Home Assistant switch per output. Outputs
// already announced by this process are skipped.
func (s *service) RegisterDevice(ctx context.Context, device model.DeviceView) error {
	for i := range device.Outputs {
		msg := defaultRegisterMsg(device, i+1, s.stateRoot)

		s.announceMu.Lock()
		_, exists := s.announced[msg.ID]
		s.announceMu.Unlock()
		if exists {
			continue
		}

		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		topic := s.configTopic(msg.ObjectID)
		if err := s.PublishRetained(ctx, topic, payload); err != nil {
			return err
		}

		s.announceMu.Lock()
		s.announced[msg.ID] = announcement{
			deviceID:    device.DeviceID,
			configTopic: topic,
			stateTopic:  s.outputTopic(device.DeviceID, i+1) + "/state",
		}
		s.announceMu.Unlock()
	}
	return nil
}

// UnregisterDevice clears the retained discovery documents and states of a
// device so Home Assistant drops its switches. Entries that fail to clear
// stay cached and are retried on the next call.
func (s *service) UnregisterDevice(ctx context.Context, deviceID string) error {
	s.announceMu.Lock()
	pending := make(map[string]announcement)
	for id, a := range s.announced {
		if a.deviceID == deviceID {
			pending[id] = a
		}
	}
	s.announceMu.Unlock()

	var errs []error
	for id, a := range pending {
		if err := s.PublishRetained(ctx, a.configTopic, []byte{}); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.PublishRetained(ctx, a.stateTopic, []byte{}); err != nil {
			errs = append(errs, err)
			continue
		}
		s.announceMu.Lock()
		delete(s.announced, id)
		s.announceMu.Unlock()
	}
	return errors.Join(errs...)
}

func (s *service) configTopic(objectID string) string {
	return fmt.Sprintf("%s/switch/%s/config", s.discoveryPrefix, objectID)
}

// Write publishes the retained ON/OFF state of one output.
func (s *service) Write(ctx context.Context, state model.OutputState) error {
	payload := payloadOff
	if state.IsOn {
		payload = payloadOn
	}
	return s.PublishRetained(ctx, s.outputTopic(state.DeviceID, state.Output)+"/state", []byte(payload))
}

// ListenCommands forwards Home Assistant switch commands to r.
func (s *service) ListenCommands(r Requester) error {
	return s.Subscribe(s.stateRoot+"/+/+/set", func(topic string, payload []byte) {
		deviceID, output, ok := s.parseCommandTopic(topic)
		if !ok {
			s.logger.Debug("ignoring command topic", zap.String("topic", topic))
			return
		}
		var value bool
		switch strings.ToUpper(strings.TrimSpace(string(payload))) {
		case payloadOn:
			value = true
		case payloadOff:
			value = false
		default:
			s.logger.Warn("unknown switch payload", zap.String("topic", topic), zap.ByteString("payload", payload))
			return
		}

		s.queueCommand(r, command{deviceID: deviceID, output: output, value: value})
	})
}

type command struct {
	deviceID string
	output   int
	value    bool
}

// queueCommand hands a switch command to the command drainer. Paho runs
// handlers on its router goroutine, so Request (which waits on a publish)
// never runs here. Commands keep their arrival order.
func (s *service) queueCommand(r Requester, cmd command) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.cmdQueue = append(s.cmdQueue, cmd)
	if s.cmdDraining {
		return
	}
	s.cmdDraining = true
	s.inflight.Add(1)
	go s.drainCommands(r)
}

func (s *service) drainCommands(r Requester) {
	defer s.inflight.Done()
	for {
		s.cmdMu.Lock()
		if len(s.cmdQueue) == 0 {
			s.cmdDraining = false
			s.cmdMu.Unlock()
			return
		}
		cmd := s.cmdQueue[0]
		s.cmdQueue = s.cmdQueue[1:]
		s.cmdMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout+time.Second)
		if err := r.Request(ctx, cmd.deviceID, cmd.output-1, cmd.value); err != nil {
			s.logger.Error("switch command failed",
				zap.String("device_id", cmd.deviceID), zap.Int("output", cmd.output), zap.Bool("value", cmd.value), zap.Error(err))
		}
		cancel()
	}
}

func (s *service) outputTopic(deviceID string, output int) string {
	return fmt.Sprintf("%s/%s/%d", s.stateRoot, deviceID, output)
}

// parseCommandTopic splits <root>/<device>/<output>/set.
func (s *service) parseCommandTopic(topic string) (string, int, bool) {
	rest, ok := strings.CutPrefix(topic, s.stateRoot+"/")
	if !ok {
		return "", 0, false
	}
	rest, ok = strings.CutSuffix(rest, "/set")
	if !ok {
		return "", 0, false
	}
	deviceID, outputStr, ok := strings.Cut(rest, "/")
	if !ok || deviceID == "" {
		return "", 0, false
	}
	output, err := strconv.Atoi(outputStr)
	if err != nil || output < 1 {
		return "", 0, false
	}
	return deviceID, output, true
}

func defaultRegisterMsg(device model.DeviceView, output int, stateRoot string) model.RegisterMessage {
	deviceName := fmt.Sprintf("%s %s", manufacturer, device.Alias)

	return model.RegisterMessage{
		Tilda:        fmt.Sprintf("%s/%s/%d", stateRoot, device.DeviceID, output),
		Name:         fmt.Sprintf("%s Output %d", device.Alias, output),
		ID:           fmt.Sprintf("smartcloudage_output::%s::%d", device.DeviceID, output),
		ObjectID:     slug.Make(fmt.Sprintf("smartcloudage %s output %d", device.DeviceID, output)),
		StateTopic:   "~/state",
		CommandTopic: "~/set",
		PayloadOn:    payloadOn,
		PayloadOff:   payloadOff,
		Device: model.RegisterDevice{
			Name:         deviceName,
			Identifiers:  []string{"smartcloudage_" + slug.Make(device.DeviceID)},
			Model:        deviceModel,
			Manufacturer: manufacturer,
		},
	}
}
