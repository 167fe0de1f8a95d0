package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/anicoll/cloudage-integration/internal/pkg/model"
)

// Snapshots returns the stored bitmask of every device.
func (db *Database) Snapshots(ctx context.Context) (model.DeviceSnapshots, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT device_id, bitmask, source, time_stamp
		FROM device_snapshot
		ORDER BY device_id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots model.DeviceSnapshots
	for rows.Next() {
		var (
			snapshot model.DeviceSnapshot
			bitmask  int64
			source   string
		)
		if err := rows.Scan(&snapshot.DeviceID, &bitmask, &source, &snapshot.TimeStamp); err != nil {
			return nil, err
		}
		snapshot.Bitmask = uint64(bitmask)
		snapshot.Source = model.Source(source)
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil && err != pgx.ErrNoRows {
		return nil, err
	}

	db.mu.Lock()
	for _, s := range snapshots {
		db.last[s.DeviceID] = s.Bitmask
	}
	db.mu.Unlock()
	return snapshots, nil
}
