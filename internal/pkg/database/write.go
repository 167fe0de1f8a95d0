package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/anicoll/cloudage-integration/internal/pkg/model"
)

// Write stores the bitmask carried by a status update. Command states carry
// no bitmask and are skipped, as are repeats of the stored value; one status
// notifies every cell with the same bitmask.
func (db *Database) Write(ctx context.Context, state model.OutputState) error {
	if state.Source != model.SourceStatus || state.Bitmask == nil {
		return nil
	}
	bitmask := *state.Bitmask
	if !db.shouldUpdate(state.DeviceID, bitmask) {
		return nil
	}

	// BIGINT holds the raw 64 bits; Snapshots converts back.
	if _, err := db.pool.Exec(ctx, `
		INSERT INTO device_snapshot (device_id, bitmask, source, time_stamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id) DO UPDATE
		SET bitmask = EXCLUDED.bitmask, source = EXCLUDED.source, time_stamp = EXCLUDED.time_stamp;`,
		state.DeviceID, int64(bitmask), state.Source.String(), state.Timestamp); err != nil {
		db.forget(state.DeviceID)
		return err
	}
	return nil
}

func (db *Database) RegisterDevice(ctx context.Context, device model.DeviceView) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO device (id, alias, outputs)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET alias = EXCLUDED.alias, outputs = EXCLUDED.outputs;`,
		device.DeviceID, device.Alias, len(device.Outputs))
	return err
}

func (db *Database) shouldUpdate(deviceID string, bitmask uint64) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	old, exists := db.last[deviceID]
	if exists && old == bitmask {
		return false
	}
	db.last[deviceID] = bitmask
	db.logger.Debug("storing snapshot", zap.String("device_id", deviceID), zap.Uint64("bitmask", bitmask))
	return true
}

func (db *Database) forget(deviceID string) {
	db.mu.Lock()
	delete(db.last, deviceID)
	db.mu.Unlock()
}
