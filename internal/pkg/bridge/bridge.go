package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/cloudage-integration/internal/pkg/cloudage"
	"github.com/anicoll/cloudage-integration/internal/pkg/config"
	"github.com/anicoll/cloudage-integration/internal/pkg/model"
	"github.com/anicoll/cloudage-integration/internal/pkg/registry"
)

type transport interface {
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Unsubscribe(topics ...string) error
	Publish(ctx context.Context, topic string, payload []byte) error
}

type notifier interface {
	StateChanged(ctx context.Context, state model.OutputState)
}

type service struct {
	cfg        *config.ProtocolConfig
	router     cloudage.Router
	devices    *registry.Holder
	transport  transport
	notifier   notifier
	dispatcher *dispatcher
	logger     *zap.Logger

	subMu      sync.Mutex
	subscribed map[string]struct{}

	outboxes sync.Map // device ID -> *outbox

	statusMu   sync.Mutex
	lastStatus map[string]uint64
}

func New(cfg *config.ProtocolConfig, devices *registry.Holder, transport transport, notifier notifier) *service {
	s := &service{
		cfg:        cfg,
		router:     cloudage.NewRouter(cfg.TopicPrefix),
		devices:    devices,
		transport:  transport,
		notifier:   notifier,
		logger:     zap.L(), // returns the global logger.
		subscribed: make(map[string]struct{}),
		lastStatus: make(map[string]uint64),
	}
	s.dispatcher = newDispatcher(cfg.QueueSize, s.handleStatus)
	return s
}

// Start begins ingesting status messages for every registered device. It
// returns once subscriptions are in place; workers run until ctx is done.
func (s *service) Start(ctx context.Context) error {
	s.dispatcher.start(ctx)
	return s.syncSubscriptions()
}

// Reload builds a new registry generation, swaps it in and reconciles the
// subscription set. Devices that fail validation are skipped and returned.
func (s *service) Reload(devices []config.DeviceConfig) []error {
	next, errs := registry.Build(devices)
	for _, err := range errs {
		s.logger.Warn("skipping device", zap.Error(err))
	}

	for _, d := range next.Devices() {
		if old, ok := s.devices.Load().Lookup(d.ID); ok {
			carryOver(old, d)
		}
	}
	prev := s.devices.Swap(next)
	removed, _ := lo.Difference(prev.IDs(), next.IDs())
	for _, id := range removed {
		s.dispatcher.retire(id)
		s.forgetStatus(id)
		s.outboxes.Delete(id)
	}

	if err := s.syncSubscriptions(); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("registry reloaded", zap.Int("devices", next.Len()), zap.Strings("removed", removed))
	return errs
}

// carryOver copies the known output states of a device that survives a
// reload. Outputs added by the new configuration start off.
func carryOver(from, to *registry.Device) {
	states := from.Snapshot()
	to.Update(func(cells []*registry.OutputCell) {
		for i, cell := range cells {
			if i < len(states) {
				cell.Set(states[i])
			}
		}
	})
}

func (s *service) syncSubscriptions() error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	want := s.router.TopicsForAll(s.devices.Load().IDs())
	current := lo.Keys(s.subscribed)
	stale, added := lo.Difference(current, want)

	if len(stale) > 0 {
		if err := s.transport.Unsubscribe(stale...); err != nil {
			s.logger.Warn("failed to unsubscribe", zap.Strings("topics", stale), zap.Error(err))
		}
		for _, topic := range stale {
			delete(s.subscribed, topic)
		}
	}
	for _, topic := range added {
		if err := s.transport.Subscribe(topic, s.onMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		s.subscribed[topic] = struct{}{}
		s.logger.Debug("subscribed", zap.String("topic", topic))
	}
	return nil
}

// onMessage is the transport callback. It never blocks on decoding; the
// payload is handed to the owning device's queue.
func (s *service) onMessage(topic string, payload []byte) {
	deviceID, ok := s.router.DeviceOf(topic)
	if !ok {
		s.logger.Debug("topic does not name a device", zap.String("topic", topic))
		return
	}
	if _, ok := s.devices.Load().Lookup(deviceID); !ok {
		s.logger.Debug("status for unknown device dropped", zap.String("device_id", deviceID), zap.String("topic", topic))
		return
	}
	s.dispatcher.enqueue(statusMessage{deviceID: deviceID, topic: topic, payload: payload})
}

func (s *service) handleStatus(ctx context.Context, msg statusMessage) {
	env, err := cloudage.Decode(msg.topic, msg.payload)
	if err != nil {
		s.logger.Debug("dropping status payload", zap.String("device_id", msg.deviceID), zap.String("topic", msg.topic), zap.Error(err))
		return
	}
	bitmask, ok := cloudage.Extract(env)
	if !ok {
		s.logger.Debug("no output bitmask in status", zap.String("device_id", msg.deviceID), zap.String("tag", env.Tag))
		return
	}
	if s.isRepeat(msg.deviceID, bitmask) {
		s.logger.Debug("status unchanged, skipped", zap.String("device_id", msg.deviceID), zap.Uint64("bitmask", bitmask), zap.String("topic", msg.topic))
		return
	}
	n := s.Apply(ctx, msg.deviceID, bitmask)
	s.rememberStatus(msg.deviceID, bitmask)
	s.logger.Debug("outputs updated",
		zap.String("device_id", msg.deviceID),
		zap.Uint64("bitmask", bitmask),
		zap.Int("cells", n),
		zap.String("inner_type", env.Tag),
		zap.String("topic", msg.topic))
}

// isRepeat reports whether bitmask is the last status applied for the device
// and the cells still hold it. A broker can hand the same publish to more
// than one of a device's subscriptions; only the first copy is applied.
// A command changes a cell, so the same status afterwards is applied again.
func (s *service) isRepeat(deviceID string, bitmask uint64) bool {
	s.statusMu.Lock()
	last, ok := s.lastStatus[deviceID]
	s.statusMu.Unlock()
	if !ok || last != bitmask {
		return false
	}
	d, ok := s.devices.Load().Lookup(deviceID)
	if !ok {
		return false
	}
	for i, on := range d.Snapshot() {
		if on != ((bitmask>>uint(i))&1 == 1) {
			return false
		}
	}
	return true
}

func (s *service) rememberStatus(deviceID string, bitmask uint64) {
	s.statusMu.Lock()
	s.lastStatus[deviceID] = bitmask
	s.statusMu.Unlock()
}

func (s *service) forgetStatus(deviceID string) {
	s.statusMu.Lock()
	delete(s.lastStatus, deviceID)
	s.statusMu.Unlock()
}

// Devices returns a consistent view of every registered device.
func (s *service) Devices() []model.DeviceView {
	return lo.Map(s.devices.Load().Devices(), func(d *registry.Device, _ int) model.DeviceView {
		return viewOf(d)
	})
}

func (s *service) Device(deviceID string) (model.DeviceView, bool) {
	d, ok := s.devices.Load().Lookup(deviceID)
	if !ok {
		return model.DeviceView{}, false
	}
	return viewOf(d), true
}

func (s *service) Registry() *registry.Registry {
	return s.devices.Load()
}

func viewOf(d *registry.Device) model.DeviceView {
	return model.DeviceView{
		DeviceID: d.ID,
		Alias:    d.Alias,
		Outputs:  d.Snapshot(),
	}
}

// Wait blocks until every ingestion worker has stopped. Call after the
// context passed to Start is cancelled.
func (s *service) Wait() {
	s.dispatcher.wait()
}
