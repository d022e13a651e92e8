// Package influx periodically reports hub statistics to InfluxDB. When the
// server cannot be reached points are appended, gzip-compressed in line
// protocol, to a backup file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement is the name every stats point is written under.
const Measurement = "vizserver_hub"

const retentionSeconds = 60 * 60 * 24 * 30

// ErrUnavailable is returned by Connect when the server is unreachable and
// no backup path is configured.
var ErrUnavailable = errors.New("influxdb unavailable")

// Config holds connection settings.
type Config struct {
	URL        string
	Token      string
	Org        string
	Bucket     string
	Service    string
	Interval   time.Duration
	BackupPath string
}

// Snapshot is one sample of server state.
type Snapshot struct {
	Connections   int
	Opened        uint64
	Closed        uint64
	Sent          uint64
	Failed        uint64
	SceneElements int
}

// SnapshotFunc samples the server.
type SnapshotFunc func() Snapshot

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	cfg    Config
	Logger zerolog.Logger

	mu           sync.Mutex
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	IsValid      bool
	backupFile   *os.File
	BackupWriter *gzip.Writer
}

// NewManager creates a Manager. Call Connect before writing.
func NewManager(log zerolog.Logger, cfg Config) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Service == "" {
		cfg.Service = "vizserver"
	}
	return &Manager{cfg: cfg, Logger: log}
}

// Connect pings the server and prepares the org, bucket and writer. If the
// ping fails it falls back to the backup file.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Client.Close()
		m.Client = nil
		if m.cfg.BackupPath == "" {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())

	m.IsValid = true
	m.Logger.Info().Str("url", m.cfg.URL).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	m.Logger.Warn().Str("backupPath", m.cfg.BackupPath).
		Msg("InfluxDB unreachable, writing to backup file")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %q: %w", m.cfg.Org, err)
		}
	}

	buckets := m.Client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			return fmt.Errorf("creating bucket %q: %w", m.cfg.Bucket, err)
		}
	}
	return nil
}

// PointFromSnapshot converts a sample into a point.
func PointFromSnapshot(service string, s Snapshot, ts time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(
		Measurement,
		map[string]string{"service": service},
		map[string]any{
			"connections":    s.Connections,
			"opened":         s.Opened,
			"closed":         s.Closed,
			"sent":           s.Sent,
			"failed":         s.Failed,
			"scene_elements": s.SceneElements,
		},
		ts,
	)
}

// WritePoint writes to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Run samples fn every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, fn SnapshotFunc) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := m.WritePoint(PointFromSnapshot(m.cfg.Service, fn(), now)); err != nil {
				m.Logger.Error().Err(err).Msg("Failed to write stats point")
			}
		}
	}
}

// Close flushes pending writes and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Writer != nil {
		m.Writer.Flush()
		m.Writer = nil
	}
	if m.Client != nil {
		m.Client.Close()
		m.Client = nil
	}
	m.IsValid = false

	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}
