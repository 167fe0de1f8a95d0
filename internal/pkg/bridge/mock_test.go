package bridge

import (
	"context"
	"sync"

	"github.com/anicoll/cloudage-integration/internal/pkg/model"
)

type published struct {
	topic   string
	payload []byte
}

// MockTransport records subscriptions and publishes.
type MockTransport struct {
	mu            sync.Mutex
	handlers      map[string]func(topic string, payload []byte)
	unsubscribed  []string
	published     []published
	PublishFunc   func(ctx context.Context, topic string, payload []byte) error
	SubscribeFunc func(topic string) error
}

func newMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[string]func(string, []byte))}
}

func (m *MockTransport) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	if m.SubscribeFunc != nil {
		if err := m.SubscribeFunc(topic); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockTransport) Unsubscribe(topics ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range topics {
		delete(m.handlers, t)
	}
	m.unsubscribed = append(m.unsubscribed, topics...)
	return nil
}

func (m *MockTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	m.published = append(m.published, published{topic: topic, payload: payload})
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, payload)
	}
	return nil
}

func (m *MockTransport) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		out = append(out, t)
	}
	return out
}

func (m *MockTransport) deliver(subscription, topic string, payload []byte) {
	m.mu.Lock()
	h := m.handlers[subscription]
	m.mu.Unlock()
	if h != nil {
		h(topic, payload)
	}
}

func (m *MockTransport) publishes() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

// MockNotifier records state changes and signals each one on changed.
// StateChangedFunc, when set, runs after the change is recorded.
type MockNotifier struct {
	mu               sync.Mutex
	states           []model.OutputState
	changed          chan model.OutputState
	StateChangedFunc func(ctx context.Context, state model.OutputState)
}

func newMockNotifier() *MockNotifier {
	return &MockNotifier{changed: make(chan model.OutputState, 1024)}
}

func (m *MockNotifier) StateChanged(ctx context.Context, state model.OutputState) {
	m.mu.Lock()
	m.states = append(m.states, state)
	m.mu.Unlock()
	select {
	case m.changed <- state:
	default:
	}
	if m.StateChangedFunc != nil {
		m.StateChangedFunc(ctx, state)
	}
}

func (m *MockNotifier) all() []model.OutputState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.OutputState(nil), m.states...)
}
