// Package memory keeps the scene journal in process memory, optionally
// exporting it to a JSON file on Close.
package memory

import (
	"sync"

	"github.com/threepy/vizserver/internal/queue"
	"github.com/threepy/vizserver/pkg/streaming"
)

// Config holds in-memory journal settings.
type Config struct {
	// MaxEntries caps the journal length; the oldest entries are discarded
	// first. Zero means unbounded.
	MaxEntries     int    `json:"maxEntries" mapstructure:"maxEntries"`
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// Backend stores journaled envelopes in a FIFO.
type Backend struct {
	cfg     Config
	entries *queue.Queue[streaming.Envelope]

	// serializes Append trimming against Reset and export
	mu             sync.Mutex
	lastExportPath string
}

// New creates a new memory backend.
func New(cfg Config) *Backend {
	return &Backend{
		cfg:     cfg,
		entries: queue.New[streaming.Envelope](),
	}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	return nil
}

// Close exports the journal when an output directory is configured.
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.export()
}

// Append records env.
func (b *Backend) Append(env streaming.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries.Push(env)
	for b.cfg.MaxEntries > 0 && b.entries.Len() > b.cfg.MaxEntries {
		b.entries.Pop()
	}
	return nil
}

// Replay calls fn for a snapshot of the journal. Entries appended during the
// replay are not visited.
func (b *Backend) Replay(fn func(streaming.Envelope) error) error {
	for _, env := range b.entries.Snapshot() {
		if err := fn(env); err != nil {
			return err
		}
	}
	return nil
}

// Reset discards the journal.
func (b *Backend) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries.Clear()
	return nil
}

// Len returns the number of journaled envelopes.
func (b *Backend) Len() int {
	return b.entries.Len()
}

// ExportedFilePath returns the path written by the last export, if any.
func (b *Backend) ExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastExportPath
}
