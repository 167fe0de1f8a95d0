package mqtt

import (
	"context"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken completes immediately unless Pending is set.
type MockToken struct {
	Err     error
	Pending bool
}

func (t *MockToken) Wait() bool { return !t.Pending }

func (t *MockToken) WaitTimeout(time.Duration) bool { return !t.Pending }

func (t *MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.Pending {
		close(ch)
	}
	return ch
}

func (t *MockToken) Error() error { return t.Err }

type mockPublish struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// MockClient implements paho_mqtt.Client in memory.
type MockClient struct {
	mu             sync.Mutex
	connected      bool
	handlers       map[string]paho_mqtt.MessageHandler
	subscribeCalls int
	unsubscribed   []string
	published      []mockPublish
	PublishToken   func(topic string) *MockToken
	SubscribeErr   error
}

func newMockClient() *MockClient {
	return &MockClient{connected: true, handlers: make(map[string]paho_mqtt.MessageHandler)}
}

func (m *MockClient) IsConnected() bool { return m.IsConnectionOpen() }

func (m *MockClient) IsConnectionOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockClient) Connect() paho_mqtt.Token {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return &MockToken{}
}

func (m *MockClient) Disconnect(uint) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token {
	m.mu.Lock()
	m.published = append(m.published, mockPublish{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	m.mu.Unlock()
	if m.PublishToken != nil {
		return m.PublishToken(topic)
	}
	return &MockToken{}
}

func (m *MockClient) Subscribe(topic string, _ byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeCalls++
	if m.SubscribeErr != nil {
		return &MockToken{Err: m.SubscribeErr}
	}
	m.handlers[topic] = callback
	return &MockToken{}
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token {
	for topic, qos := range filters {
		m.Subscribe(topic, qos, callback)
	}
	return &MockToken{}
}

func (m *MockClient) Unsubscribe(topics ...string) paho_mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range topics {
		delete(m.handlers, t)
	}
	m.unsubscribed = append(m.unsubscribed, topics...)
	return &MockToken{}
}

func (m *MockClient) AddRoute(topic string, callback paho_mqtt.MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = callback
}

func (m *MockClient) OptionsReader() paho_mqtt.ClientOptionsReader {
	return paho_mqtt.ClientOptionsReader{}
}

func (m *MockClient) deliver(subscription, topic string, payload []byte) {
	m.mu.Lock()
	h := m.handlers[subscription]
	m.mu.Unlock()
	if h != nil {
		h(m, &mockMessage{topic: topic, payload: payload})
	}
}

func (m *MockClient) publishes() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 0 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

// MockRequester records switch commands.
type MockRequester struct {
	mu          sync.Mutex
	calls       []requestCall
	RequestFunc func(deviceID string, index int, value bool) error
}

type requestCall struct {
	deviceID string
	index    int
	value    bool
}

func (m *MockRequester) Request(_ context.Context, deviceID string, index int, value bool) error {
	m.mu.Lock()
	m.calls = append(m.calls, requestCall{deviceID: deviceID, index: index, value: value})
	m.mu.Unlock()
	if m.RequestFunc != nil {
		return m.RequestFunc(deviceID, index, value)
	}
	return nil
}
