package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/cloudage-integration/internal/pkg/cloudage"
)

// SyncTime broadcasts the current wall-clock time to every registered
// controller. Failures for one device do not stop the rest.
func (s *service) SyncTime(ctx context.Context) error {
	return s.syncTimeAt(ctx, time.Now())
}

func (s *service) syncTimeAt(ctx context.Context, now time.Time) error {
	var errs []error
	devices := s.devices.Load().Devices()
	for _, d := range devices {
		data, err := cloudage.EncodeDateTime(d.ID, d.Signature, now).Marshal()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.transport.Publish(ctx, s.router.CommandTopic(d.ID), data); err != nil {
			errs = append(errs, fmt.Errorf("%w: time sync %s: %w", cloudage.ErrPublish, d.ID, err))
		}
	}
	s.logger.Debug("time sync sent", zap.Int("devices", len(devices)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}
