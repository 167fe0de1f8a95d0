package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/cloudage-integration/internal/pkg/config"
	"github.com/anicoll/cloudage-integration/internal/pkg/model"
)

type reloader interface {
	Reload(devices []config.DeviceConfig) []error
	Devices() []model.DeviceView
}

type deviceRegistrar interface {
	RegisterDevices(ctx context.Context, devices []model.DeviceView)
}

type deviceUnregistrar interface {
	UnregisterDevice(ctx context.Context, deviceID string) error
}

// watchReload re-reads the devices file on SIGHUP.
func watchReload(ctx context.Context, path string, b reloader, pub deviceRegistrar, discovery deviceUnregistrar) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			if err := reloadDevices(ctx, path, b, pub, discovery); err != nil {
				zap.L().Error("reload failed, keeping current devices", zap.Error(err))
			}
		}
	}
}

// reloadDevices swaps in the devices from path. A file that cannot be read
// leaves the running set untouched; invalid entries are skipped. Devices
// that disappear have their discovery entries cleared.
func reloadDevices(ctx context.Context, path string, b reloader, pub deviceRegistrar, discovery deviceUnregistrar) error {
	devices, err := config.LoadDevices(path)
	if err != nil {
		return err
	}
	before := deviceIDs(b.Devices())
	for _, err := range b.Reload(devices) {
		zap.L().Warn("device not loaded", zap.Error(err))
	}
	current := b.Devices()
	removed, _ := lo.Difference(before, deviceIDs(current))
	for _, id := range removed {
		if err := discovery.UnregisterDevice(ctx, id); err != nil {
			zap.L().Error("failed to clear discovery", zap.String("device_id", id), zap.Error(err))
		}
	}
	pub.RegisterDevices(ctx, current)
	return nil
}

func deviceIDs(devices []model.DeviceView) []string {
	return lo.Map(devices, func(d model.DeviceView, _ int) string { return d.DeviceID })
}
