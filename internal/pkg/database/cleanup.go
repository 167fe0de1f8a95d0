package database

import (
	"context"

	"github.com/samber/lo"
)

// Prune removes devices, and their snapshots, that are no longer configured.
func (db *Database) Prune(ctx context.Context, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM device_snapshot WHERE NOT (device_id = ANY($1));`, keep)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM device WHERE NOT (id = ANY($1));`, keep); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	db.mu.Lock()
	for id := range db.last {
		if !lo.Contains(keep, id) {
			delete(db.last, id)
		}
	}
	db.mu.Unlock()
	return tag.RowsAffected(), nil
}
