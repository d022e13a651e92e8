package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/threepy/vizserver/pkg/streaming"
)

// SceneExport is the root JSON structure of an exported journal.
type SceneExport struct {
	ExportedAt time.Time            `json:"exportedAt"`
	Count      int                  `json:"count"`
	Messages   []streaming.Envelope `json:"messages"`
}

// export writes the journal to OutputDir. Callers hold b.mu.
func (b *Backend) export() error {
	msgs := b.entries.Snapshot()
	now := time.Now().UTC()
	data := SceneExport{
		ExportedAt: now,
		Count:      len(msgs),
		Messages:   msgs,
	}

	filename := fmt.Sprintf("scene_%s.json", now.Format("20060102_150405"))
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, data)
	} else {
		err = writeJSON(outputPath, data)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func writeJSON(path string, data SceneExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()
	return encode(f, data)
}

func writeGzipJSON(path string, data SceneExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := encode(gz, data); err != nil {
		return err
	}
	return gz.Close()
}

func encode(w io.Writer, data SceneExport) error {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}
