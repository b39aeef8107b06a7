package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dwellir-public/haproxy-collector/internal/topology"
	"github.com/dwellir-public/haproxy-collector/pkg/logger"
)

// Snapshot is the on-disk shape written by FileIngestor
type Snapshot struct {
	HAProxyID   int64            `json:"haproxy_id"`
	CollectedAt time.Time        `json:"collected_at"`
	Entries     []topology.Entry `json:"entries"`
}

// FileIngestor writes the resolved entries to a JSON file instead of the
// database. Used for dry runs and local inspection.
type FileIngestor struct {
	path   string
	logger *logger.Logger
}

// NewFileIngestor creates a file ingestor targeting the given path
func NewFileIngestor(path string, log *logger.Logger) *FileIngestor {
	return &FileIngestor{path: path, logger: log}
}

// Ingest writes one pass worth of entries as a JSON snapshot. The write is
// atomic: a temp file in the same directory is renamed into place.
func (f *FileIngestor) Ingest(ctx context.Context, haproxyID int64, entries []topology.Entry) error {
	snapshot := Snapshot{
		HAProxyID:   haproxyID,
		CollectedAt: time.Now().UTC(),
		Entries:     entries,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	f.logger.IngestLogger().WithFields(map[string]interface{}{
		"path":    f.path,
		"entries": len(entries),
	}).Info("Wrote topology snapshot")
	return nil
}

// LoadSnapshot reads a snapshot previously written by Ingest
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return &snapshot, nil
}
