package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/cloudage-integration/internal/pkg/bridge"
	"github.com/anicoll/cloudage-integration/internal/pkg/cloudage"
	"github.com/anicoll/cloudage-integration/internal/pkg/config"
	"github.com/anicoll/cloudage-integration/internal/pkg/database"
	"github.com/anicoll/cloudage-integration/internal/pkg/database/migration"
	"github.com/anicoll/cloudage-integration/internal/pkg/mqtt"
	"github.com/anicoll/cloudage-integration/internal/pkg/publisher"
	"github.com/anicoll/cloudage-integration/internal/pkg/registry"
	"github.com/anicoll/cloudage-integration/internal/pkg/server"
	"github.com/anicoll/cloudage-integration/pkg/hasher"
)

var errCron = errors.New("cron error")

// CloudAgeCommand is the main entry point for the bridge CLI command. It
// validates configuration and starts all required services.
func CloudAgeCommand(ctx *cli.Context) error {
	for _, name := range []string{"mqtt-host", "devices-file"} {
		if ctx.String(name) == "" {
			return fmt.Errorf("%w: --%s is required", cloudage.ErrConfig, name)
		}
	}
	protocolCfg, err := config.LoadProtocol()
	if err != nil {
		return err
	}
	cfg := &config.Config{
		MqttCfg: &config.MqttConfig{
			Host:     ctx.String("mqtt-host"),
			Username: ctx.String("mqtt-user"),
			Password: ctx.String("mqtt-pass"),
			ClientID: ctx.String("mqtt-client-id"),
		},
		ProtocolCfg:      protocolCfg,
		DevicesFile:      ctx.String("devices-file"),
		HTTPAddr:         ctx.String("http-addr"),
		DatabaseURL:      ctx.String("database-url"),
		MigrationsFolder: ctx.String("migrations-folder"),
		APITokenHash:     ctx.String("api-token-hash"),
		LogLevel:         ctx.String("log-level"),
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store SnapshotStore
	if cfg.DatabaseURL != "" {
		if cfg.MigrationsFolder != "" {
			if err := migration.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil {
				return fmt.Errorf("migrating database: %w", err)
			}
		}
		db, err := database.NewDatabase(runCtx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		store = db
	}

	errorChan := make(chan error, 1000)
	return run(runCtx, cfg, mqtt.New(cfg.MqttCfg, cfg.ProtocolCfg), store, errorChan, logger)
}

// TokenCommand prints a new API token and the hash to pass as api-token-hash.
func TokenCommand(ctx *cli.Context) error {
	token, hash, err := hasher.NewAPIToken()
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "token: %s\nhash:  %s\n", token, hash)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	var err error
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

func run(ctx context.Context, cfg *config.Config, broker BrokerService, store SnapshotStore, errorChan chan error, logger *zap.Logger) error {
	zap.ReplaceGlobals(logger)
	eg, ctx := errgroup.WithContext(ctx)

	devices, err := config.LoadDevices(cfg.DevicesFile)
	if err != nil {
		return err
	}
	reg, errs := registry.Build(devices)
	for _, err := range errs {
		logger.Warn("skipping device", zap.Error(err))
	}

	pub := publisher.New()
	if err := pub.RegisterPublisher("mqtt", broker); err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		if err := pub.RegisterPublisher("postgres", store); err != nil {
			return err
		}
	}

	bridgeSvc := bridge.New(cfg.ProtocolCfg, registry.NewHolder(reg), broker, pub)
	api := server.New(bridgeSvc, broker, cfg.APITokenHash)
	defer api.Close()
	if err := pub.RegisterPublisher("websocket", api); err != nil {
		return err
	}

	if err := broker.Connect(); err != nil {
		return err
	}
	defer broker.Close()

	pub.RegisterDevices(ctx, bridgeSvc.Devices())
	if store != nil {
		snapshots, err := store.Snapshots(ctx)
		if err != nil {
			return err
		}
		logger.Info("restored device state", zap.Int("devices", bridgeSvc.Restore(ctx, snapshots)))
	}

	if err := bridgeSvc.Start(ctx); err != nil {
		return err
	}
	if err := broker.ListenCommands(bridgeSvc); err != nil {
		return err
	}
	logger.Info("bridge started", zap.Int("devices", reg.Len()), zap.String("topic_prefix", cfg.ProtocolCfg.TopicPrefix))

	eg.Go(func() error {
		return cronJobs(ctx, cfg.ProtocolCfg.TimeSyncInterval, bridgeSvc, store, errorChan)
	})

	eg.Go(func() error {
		return watchReload(ctx, cfg.DevicesFile, bridgeSvc, pub, broker)
	})

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Handler:      api.Router(),
			Addr:         cfg.HTTPAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		eg.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		// handle any async errors from services
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Warn("background error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	err = eg.Wait()
	bridgeSvc.Wait()
	return err
}

type timeSyncer interface {
	SyncTime(ctx context.Context) error
	Registry() *registry.Registry
}

// cronJobs keeps controller clocks in sync and prunes snapshots of devices
// that left the configuration.
func cronJobs(ctx context.Context, interval time.Duration, b timeSyncer, store SnapshotStore, errChan chan error) error {
	syncTime := func() {
		if err := b.SyncTime(ctx); err != nil {
			zap.L().Warn("time sync incomplete", zap.Error(err))
			return
		}
		zap.L().Debug("controller clocks synced")
	}
	syncTime()

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), syncTime); err != nil {
		return err
	}
	if store != nil {
		if _, err := c.AddFunc("0 3 * * *", func() {
			removed, err := store.Prune(ctx, b.Registry().IDs())
			if err != nil {
				zap.L().Error("error pruning snapshots", zap.Error(err))
				errChan <- errCron
				return
			}
			zap.L().Info("pruned stale snapshots", zap.Int64("removed", removed))
		}); err != nil {
			return err
		}
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
