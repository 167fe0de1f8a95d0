package publisher

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/cloudage-integration/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

type publisher interface {
	// Write publishes one output state change to the adapter.
	Write(ctx context.Context, state model.OutputState) error
	RegisterDevice(ctx context.Context, device model.DeviceView) error
}

// Publisher fans state changes out to every registered adapter. A failing
// adapter is logged and skipped; it never blocks the others.
type Publisher struct {
	mu         sync.RWMutex
	names      []string
	publishers map[string]publisher
	logger     *zap.Logger
}

func New() *Publisher {
	return &Publisher{
		publishers: make(map[string]publisher),
		logger:     zap.L(), // returns the global logger.
	}
}

func (p *Publisher) RegisterPublisher(name string, pub publisher) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.publishers[name]; ok {
		return errAlreadyRegistered
	}
	p.publishers[name] = pub
	p.names = append(p.names, name)
	return nil
}

// StateChanged is called by the bridge after every cell write.
func (p *Publisher) StateChanged(ctx context.Context, state model.OutputState) {
	p.each(func(name string, pub publisher) {
		if err := pub.Write(ctx, state); err != nil {
			p.logger.Error("failed to publish state", zap.Error(err), zap.String("publisher", name),
				zap.String("device_id", state.DeviceID), zap.Int("output", state.Output))
			return
		}
		p.logger.Debug("published state", zap.String("publisher", name),
			zap.String("device_id", state.DeviceID), zap.Int("output", state.Output), zap.Bool("is_on", state.IsOn))
	})
}

func (p *Publisher) RegisterDevices(ctx context.Context, devices []model.DeviceView) {
	for _, device := range devices {
		p.each(func(name string, pub publisher) {
			if err := pub.RegisterDevice(ctx, device); err != nil {
				p.logger.Error("failed to register device", zap.Error(err), zap.String("publisher", name),
					zap.String("device_id", device.DeviceID))
				return
			}
			p.logger.Debug("registered device", zap.String("device_id", device.DeviceID), zap.String("publisher", name))
		})
	}
}

// each visits adapters in registration order.
func (p *Publisher) each(fn func(name string, pub publisher)) {
	p.mu.RLock()
	names := append([]string(nil), p.names...)
	pubs := make([]publisher, len(names))
	for i, name := range names {
		pubs[i] = p.publishers[name]
	}
	p.mu.RUnlock()

	for i, name := range names {
		fn(name, pubs[i])
	}
}
