package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/cloudage-integration/internal/pkg/cloudage"
	"github.com/anicoll/cloudage-integration/internal/pkg/model"
	"github.com/anicoll/cloudage-integration/internal/pkg/registry"
)

// Apply sets every output of deviceID from bitmask (bit i drives output i)
// and notifies observers once per cell, in the same order as the writes
// land on the cells. Bits above the device's output count
// are ignored and missing high bits read as off. Unknown devices are a no-op.
func (s *service) Apply(ctx context.Context, deviceID string, bitmask uint64) int {
	d, ok := s.devices.Load().Lookup(deviceID)
	if !ok {
		s.logger.Debug("apply for unknown device ignored", zap.String("device_id", deviceID))
		return 0
	}

	now := time.Now()
	ob := s.outboxFor(d.ID)
	n := 0
	d.Update(func(cells []*registry.OutputCell) {
		for i, cell := range cells {
			on := (bitmask>>uint(i))&1 == 1
			cell.Set(on)
			ob.push(stateOf(d, cell.Index, on, model.SourceStatus, &bitmask, now))
		}
		n = len(cells)
	})
	s.flush(ctx, ob)
	return n
}

// Request drives one output (0-based index) of a device. The cell is set and
// observers notified before the command is published; a later status update
// overrides it. A failed publish is reported but the optimistic state stays.
func (s *service) Request(ctx context.Context, deviceID string, index int, value bool) error {
	d, ok := s.devices.Load().Lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", cloudage.ErrUnknownDevice, deviceID)
	}
	frame, err := cloudage.EncodeOutput(deviceID, index, value, d.Signature)
	if err != nil {
		return err
	}
	cell, ok := d.Cell(index)
	if !ok {
		return fmt.Errorf("%w: output %d not in 1..%d for %s", cloudage.ErrEncoding, index+1, d.OutputCount(), deviceID)
	}
	data, err := frame.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", cloudage.ErrEncoding, err)
	}

	ob := s.outboxFor(d.ID)
	d.Update(func(_ []*registry.OutputCell) {
		cell.Set(value)
		ob.push(stateOf(d, index, value, model.SourceCommand, nil, time.Now()))
	})
	s.flush(ctx, ob)

	topic := s.router.CommandTopic(deviceID)
	s.logger.Debug("publishing output command", zap.String("topic", topic), zap.ByteString("payload", data))
	if err := s.transport.Publish(ctx, topic, data); err != nil {
		s.logger.Error("output command not published, optimistic state kept",
			zap.String("device_id", deviceID), zap.Int("output", index+1), zap.Error(err))
		return fmt.Errorf("%w: %w", cloudage.ErrPublish, err)
	}
	return nil
}

// Restore seeds devices with previously stored bitmasks.
func (s *service) Restore(ctx context.Context, snapshots model.DeviceSnapshots) int {
	restored := 0
	for _, snap := range snapshots {
		if s.Apply(ctx, snap.DeviceID, snap.Bitmask) > 0 {
			restored++
		}
	}
	return restored
}

func stateOf(d *registry.Device, index int, on bool, source model.Source, bitmask *uint64, now time.Time) model.OutputState {
	return model.OutputState{
		DeviceID:  d.ID,
		Alias:     d.Alias,
		Output:    index + 1,
		IsOn:      on,
		Source:    source,
		Bitmask:   bitmask,
		Timestamp: now,
	}
}
