package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/davidvella/logclean/errdefs"
)

const manifestName = "manifest.json"

// Manifest records the partitioning of a run so that a later stage can be
// restarted from the working directory alone.
type Manifest struct {
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
	Partitions int    `json:"partitions"`
	Lines      int    `json:"lines"`
	Skipped    int    `json:"skipped"`
}

// WriteManifest atomically replaces the manifest of the working directory.
func (s *Storage) WriteManifest(_ context.Context, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, manifestName)
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errdefs.NewIOError("write", tmp, errdefs.NoPartition, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errdefs.NewIOError("rename", path, errdefs.NoPartition, err)
	}
	return nil
}

// ReadManifest reads the manifest of the working directory.
func (s *Storage) ReadManifest(_ context.Context) (Manifest, error) {
	path := filepath.Join(s.dir, manifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errdefs.NewIOError("read", path, errdefs.NoPartition, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, &errdefs.InvariantViolation{
			Partition: errdefs.NoPartition,
			Detail:    "unreadable manifest " + path,
			Err:       err,
		}
	}
	return m, nil
}

// RemoveManifest deletes the manifest if present.
func (s *Storage) RemoveManifest(_ context.Context) error {
	path := filepath.Join(s.dir, manifestName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errdefs.NewIOError("remove", path, errdefs.NoPartition, err)
	}
	return nil
}
