package cmd

import (
	"context"
	"sync"

	"github.com/anicoll/cloudage-integration/internal/pkg/model"
	"github.com/anicoll/cloudage-integration/internal/pkg/mqtt"
)

type mockPublish struct {
	topic   string
	payload string
}

// MockBrokerService is a mock implementation of the BrokerService interface.
type MockBrokerService struct {
	mu         sync.Mutex
	subscribed []string
	published  []mockPublish
	states     []model.OutputState
	registered []string
	removed    []string
	requester  mqtt.Requester

	ConnectFunc func() error
}

func (m *MockBrokerService) Connect() error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc()
	}
	return nil
}

func (m *MockBrokerService) Close() {}

func (m *MockBrokerService) IsConnected() bool { return true }

func (m *MockBrokerService) Subscribe(topic string, _ func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, topic)
	return nil
}

func (m *MockBrokerService) Unsubscribe(...string) error { return nil }

func (m *MockBrokerService) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{topic: topic, payload: string(payload)})
	return nil
}

func (m *MockBrokerService) Write(_ context.Context, state model.OutputState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return nil
}

func (m *MockBrokerService) RegisterDevice(_ context.Context, device model.DeviceView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, device.DeviceID)
	return nil
}

func (m *MockBrokerService) UnregisterDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, deviceID)
	return nil
}

func (m *MockBrokerService) ListenCommands(r mqtt.Requester) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requester = r
	return nil
}

func (m *MockBrokerService) snapshot() (subscribed []string, published []mockPublish, states []model.OutputState, registered []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...),
		append([]mockPublish(nil), m.published...),
		append([]model.OutputState(nil), m.states...),
		append([]string(nil), m.registered...)
}

// MockSnapshotStore is a mock implementation of the SnapshotStore interface.
type MockSnapshotStore struct {
	mu        sync.Mutex
	writes    int
	closed    bool
	snapshots model.DeviceSnapshots
	PruneFunc func(keep []string) (int64, error)
}

func (m *MockSnapshotStore) Write(context.Context, model.OutputState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	return nil
}

func (m *MockSnapshotStore) RegisterDevice(context.Context, model.DeviceView) error { return nil }

func (m *MockSnapshotStore) Snapshots(context.Context) (model.DeviceSnapshots, error) {
	return m.snapshots, nil
}

func (m *MockSnapshotStore) Prune(_ context.Context, keep []string) (int64, error) {
	if m.PruneFunc != nil {
		return m.PruneFunc(keep)
	}
	return 0, nil
}

func (m *MockSnapshotStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
