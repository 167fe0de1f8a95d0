package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/cloudage-integration/internal/pkg/config"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrTimeout      = errors.New("mqtt operation timed out")
)

// MessageHandler receives the topic and raw payload of an inbound message.
type MessageHandler = func(topic string, payload []byte)

type service struct {
	client  paho_mqtt.Client
	qos     byte
	timeout time.Duration

	discoveryPrefix string
	stateRoot       string

	subMu         sync.RWMutex
	subscriptions map[string]MessageHandler

	announceMu sync.Mutex
	announced  map[string]announcement

	cmdMu       sync.Mutex
	cmdQueue    []command
	cmdDraining bool
	inflight    sync.WaitGroup

	logger *zap.Logger
}

// NewOptions builds paho client options for the broker in cfg. Reconnects
// are left to paho. Messages are handed to subscribers one at a time in
// arrival order, so handlers must not block.
func NewOptions(cfg *config.MqttConfig) *paho_mqtt.ClientOptions {
	return paho_mqtt.NewClientOptions().
		AddBroker(cfg.Host).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetKeepAlive(30 * time.Second)
}

// New creates the broker client. Subscriptions made through it are restored
// whenever paho reconnects.
func New(cfg *config.MqttConfig, protocol *config.ProtocolConfig) *service {
	s := newService(nil, protocol)
	opts := NewOptions(cfg).
		SetOnConnectHandler(func(_ paho_mqtt.Client) { s.restoreSubscriptions() }).
		SetConnectionLostHandler(func(_ paho_mqtt.Client, err error) {
			s.logger.Warn("mqtt connection lost", zap.Error(err))
		})
	s.client = paho_mqtt.NewClient(opts)
	return s
}

func newService(client paho_mqtt.Client, protocol *config.ProtocolConfig) *service {
	return &service{
		client:          client,
		qos:             protocol.QoS,
		timeout:         protocol.PublishTimeout,
		discoveryPrefix: protocol.DiscoveryPrefix,
		stateRoot:       protocol.StateTopicRoot,
		subscriptions:   make(map[string]MessageHandler),
		announced:       make(map[string]announcement),
		logger:          zap.L(), // returns the global logger.
	}
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}

func (s *service) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Close disconnects, giving in-flight work a short grace period, then waits
// for queued switch commands to finish.
func (s *service) Close() {
	s.client.Disconnect(250)
	s.inflight.Wait()
}

// Subscribe registers handler for topic (wildcards allowed). Handler panics
// are recovered so one bad payload cannot take down the client.
func (s *service) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" || handler == nil {
		return fmt.Errorf("invalid subscription for topic %q", topic)
	}
	s.subMu.Lock()
	s.subscriptions[topic] = handler
	s.subMu.Unlock()

	if err := s.wait(context.Background(), s.client.Subscribe(topic, s.qos, s.wrapHandler(handler))); err != nil {
		s.subMu.Lock()
		delete(s.subscriptions, topic)
		s.subMu.Unlock()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (s *service) Unsubscribe(topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	s.subMu.Lock()
	for _, t := range topics {
		delete(s.subscriptions, t)
	}
	s.subMu.Unlock()

	if err := s.wait(context.Background(), s.client.Unsubscribe(topics...)); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

// Publish sends a non-retained message and waits for the broker to accept
// it, the publish timeout, or ctx.
func (s *service) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.publish(ctx, topic, payload, false)
}

func (s *service) PublishRetained(ctx context.Context, topic string, payload []byte) error {
	return s.publish(ctx, topic, payload, true)
}

func (s *service) publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := s.wait(ctx, s.client.Publish(topic, s.qos, retained, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (s *service) wait(ctx context.Context, token paho_mqtt.Token) error {
	timeout := s.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *service) restoreSubscriptions() {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for topic, handler := range s.subscriptions {
		s.client.Subscribe(topic, s.qos, s.wrapHandler(handler))
	}
	s.logger.Info("mqtt connected", zap.Int("subscriptions", len(s.subscriptions)))
}

func (s *service) wrapHandler(handler MessageHandler) paho_mqtt.MessageHandler {
	return func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("mqtt handler panic recovered", zap.String("topic", msg.Topic()), zap.Any("panic", r))
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}
