package cmd

import (
	"context"

	"github.com/anicoll/cloudage-integration/internal/pkg/model"
	"github.com/anicoll/cloudage-integration/internal/pkg/mqtt"
)

// BrokerService defines what cmd.run expects from the MQTT connection: the
// bridge transport plus the Home Assistant adapter.
type BrokerService interface {
	Connect() error
	Close()
	IsConnected() bool
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Unsubscribe(topics ...string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Write(ctx context.Context, state model.OutputState) error
	RegisterDevice(ctx context.Context, device model.DeviceView) error
	UnregisterDevice(ctx context.Context, deviceID string) error
	ListenCommands(r mqtt.Requester) error
}

// SnapshotStore persists the latest bitmask per device.
type SnapshotStore interface {
	Write(ctx context.Context, state model.OutputState) error
	RegisterDevice(ctx context.Context, device model.DeviceView) error
	Snapshots(ctx context.Context) (model.DeviceSnapshots, error)
	Prune(ctx context.Context, keep []string) (int64, error)
	Close() error
}
