// Command vizserver serves scene descriptions to connected Three.js
// viewers over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/threepy/vizserver/internal/config"
	"github.com/threepy/vizserver/internal/hub"
	"github.com/threepy/vizserver/internal/influx"
	"github.com/threepy/vizserver/internal/logging"
	intOtel "github.com/threepy/vizserver/internal/otel"
	"github.com/threepy/vizserver/internal/storage"
	"github.com/threepy/vizserver/internal/storage/memory"
	"github.com/threepy/vizserver/internal/visualizer"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const serviceName = "vizserver"

func main() {
	fs := pflag.NewFlagSet(serviceName, pflag.ExitOnError)
	configDir := fs.String("config", ".", "directory containing "+config.FileName)
	demo := fs.Bool("demo", false, "describe an Earth scene on startup")
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	if err := run(fs, *configDir, *demo); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(fs *pflag.FlagSet, configDir string, demo bool) error {
	sessionStart := time.Now()

	if err := config.Load(configDir); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		slog.Warn("No config file found, using defaults", "dir", configDir)
	}
	if err := config.BindFlags(fs); err != nil {
		return err
	}

	logFile, err := logging.OpenLogFile(config.GetString("logsDir"), serviceName, sessionStart)
	if err != nil {
		return err
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up OTel: %w", err)
	}

	// set once the hub exists; nothing logs concurrently before that
	var manager *hub.Manager

	logManager := logging.NewManager()
	logManager.Setup(logging.Options{
		Level:    config.GetString("logLevel"),
		Console:  os.Stdout,
		File:     logFile,
		Provider: provider.LoggerProvider(),
		Scope:    otelCfg.ServiceName,
		Context: func() []slog.Attr {
			if manager == nil {
				return nil
			}
			return []slog.Attr{slog.Int("connections", manager.Count())}
		},
	})
	logger := logManager.Logger()
	logger.Info("Starting vizserver", "version", Version, "buildDate", BuildDate, "logFile", logFile.Name())

	infraLog := newInfraLogger(config.GetString("logLevel"), logFile)

	serverCfg := config.GetServerConfig()
	hubCfg := config.GetHubConfig()
	manager, err = hub.New(hub.Config{
		Host:        serverCfg.Host,
		Port:        serverCfg.Port,
		Path:        serverCfg.Path,
		MaxPending:  hubCfg.MaxPending,
		WriteWait:   hubCfg.WriteWait,
		IdleTimeout: hubCfg.IdleTimeout,
		ReadLimit:   hubCfg.ReadLimit,
	}, logger.With("component", "hub"))
	if err != nil {
		return fmt.Errorf("failed to create hub: %w", err)
	}

	journal, err := createJournal(config.GetStorageConfig(), logger.With("component", "journal"), infraLog)
	if err != nil {
		return err
	}
	if journal == nil && demo {
		journal = memory.New(memory.Config{})
	}
	if journal != nil {
		if err := journal.Init(); err != nil {
			return fmt.Errorf("failed to initialize scene journal: %w", err)
		}
		defer closeJournal(journal, logger)
	}

	viz := visualizer.New(visualizer.Dependencies{
		Hub:     manager,
		Journal: journal,
		Logger:  logger.With("component", "visualizer"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vizCfg := config.GetVisualizerConfig()
	if vizCfg.ReplayOnInit || demo {
		manager.OnVisualizer(func(connID string) {
			rctx, cancel := context.WithTimeout(ctx, vizCfg.ReplayTimeout)
			defer cancel()
			if err := viz.Replay(rctx, connID); err != nil {
				logger.Warn("Scene replay failed", "conn", connID, "error", err)
			}
		})
	}

	if demo {
		if err := populateEarthDemo(viz); err != nil {
			return fmt.Errorf("failed to build demo scene: %w", err)
		}
		logger.Info("Demo scene ready", "elements", viz.Registry().Len())
	}

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		reporter := startInflux(ctx, influxCfg, infraLog, sessionStart, func() influx.Snapshot {
			s := manager.Stats()
			return influx.Snapshot{
				Connections:   s.Active,
				Opened:        s.Opened,
				Closed:        s.Closed,
				Sent:          s.Sent,
				Failed:        s.Failed,
				SceneElements: viz.Registry().Len() - 1,
			}
		})
		if reporter != nil {
			defer reporter.Close()
		}
	}

	err = manager.ListenAndServe(ctx)
	logger.Info("Shutting down", "uptime", time.Since(sessionStart).Round(time.Second))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := logManager.Flush(shutdownCtx); ferr != nil {
		logger.Warn("Failed to flush logs", "error", ferr)
	}
	if serr := provider.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("Failed to shut down OTel", "error", serr)
	}
	return err
}

// newInfraLogger builds the zerolog logger used by the database and
// InfluxDB managers.
func newInfraLogger(level string, file *os.File) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	mlw := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
		file,
	)
	return zerolog.New(mlw).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}

func startInflux(ctx context.Context, cfg config.InfluxConfig, log zerolog.Logger, start time.Time, sample influx.SnapshotFunc) *influx.Manager {
	backupPath := ""
	if cfg.BackupDir != "" {
		backupPath = filepath.Join(cfg.BackupDir, fmt.Sprintf("%s_%s.lp.gz", serviceName, start.Format("20060102_150405")))
	}
	reporter := influx.NewManager(log, influx.Config{
		URL:        cfg.URL(),
		Token:      cfg.Token,
		Org:        cfg.Org,
		Bucket:     cfg.Bucket,
		Service:    serviceName,
		Interval:   cfg.Interval,
		BackupPath: backupPath,
	})
	if err := reporter.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("Stats reporting disabled")
		return nil
	}
	go reporter.Run(ctx, sample)
	return reporter
}

func closeJournal(journal storage.Backend, logger *slog.Logger) {
	if err := journal.Close(); err != nil {
		logger.Error("Failed to close scene journal", "error", err)
	}
}
