package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/davidvella/logclean/errdefs"
)

// Stage names a working subdirectory.
type Stage string

const (
	// Raw holds materialized, unsorted partitions.
	Raw Stage = "raw"
	// Sorted holds sorted partition tables.
	Sorted Stage = "sorted"
)

// ReadSeekCloser is an open partition file.
type ReadSeekCloser interface {
	io.ReadSeeker
	io.ReaderAt
	io.Closer
}

// Storage lays partition files out under a working directory, one
// subdirectory per stage, each file named by its partition index.
type Storage struct {
	dir string
}

func NewLocalStorage(dir string) *Storage {
	return &Storage{dir: dir}
}

// Dir returns the working directory.
func (s *Storage) Dir() string {
	return s.dir
}

// Init creates the stage subdirectories.
func (s *Storage) Init(_ context.Context) error {
	for _, stage := range []Stage{Raw, Sorted} {
		path := filepath.Join(s.dir, string(stage))
		if err := os.MkdirAll(path, 0o755); err != nil {
			return errdefs.NewIOError("mkdir", path, errdefs.NoPartition, err)
		}
	}
	return nil
}

// Path returns the file name of partition id in stage.
func (s *Storage) Path(stage Stage, id int) string {
	return filepath.Join(s.dir, string(stage), strconv.Itoa(id))
}

// Create starts writing the file of partition id. The file becomes visible
// under its final name only when Commit succeeds, so a listed partition file
// is always complete.
func (s *Storage) Create(_ context.Context, stage Stage, id int) (*PartitionFile, error) {
	final := s.Path(stage, id)
	path := filepath.Join(filepath.Dir(final), "."+filepath.Base(final)+".partial")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errdefs.NewIOError("create", path, id, err)
	}
	return &PartitionFile{file: file, path: path, final: final, id: id}, nil
}

// Exists reports whether the file of partition id has been committed.
func (s *Storage) Exists(_ context.Context, stage Stage, id int) bool {
	_, err := os.Stat(s.Path(stage, id))
	return err == nil
}

// Open opens the file of partition id for reading.
func (s *Storage) Open(_ context.Context, stage Stage, id int) (ReadSeekCloser, error) {
	path := s.Path(stage, id)
	file, err := os.Open(path)
	if err != nil {
		return nil, errdefs.NewIOError("open", path, id, err)
	}
	return file, nil
}

// List returns the partition indexes present in stage, ascending. Entries
// that are not named by an index are ignored.
func (s *Storage) List(_ context.Context, stage Stage) ([]int, error) {
	path := filepath.Join(s.dir, string(stage))
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errdefs.NewIOError("list", path, errdefs.NoPartition, err)
	}

	var ids []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, err := strconv.Atoi(entry.Name())
		if err != nil || id < 0 || strconv.Itoa(id) != entry.Name() {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete removes the file of partition id.
func (s *Storage) Delete(_ context.Context, stage Stage, id int) error {
	path := s.Path(stage, id)
	if err := os.Remove(path); err != nil {
		return errdefs.NewIOError("remove", path, id, err)
	}
	return nil
}

// Clear removes every file of stage and the stage directory itself.
func (s *Storage) Clear(_ context.Context, stage Stage) error {
	path := filepath.Join(s.dir, string(stage))
	if err := os.RemoveAll(path); err != nil {
		return errdefs.NewIOError("remove", path, errdefs.NoPartition, err)
	}
	return nil
}

// RemoveDir removes the working directory when it is empty.
func (s *Storage) RemoveDir(_ context.Context) error {
	err := os.Remove(s.dir)
	if err != nil && !os.IsNotExist(err) && !isNotEmpty(s.dir) {
		return errdefs.NewIOError("remove", s.dir, errdefs.NoPartition, err)
	}
	return nil
}

func isNotEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func (s *Storage) String() string {
	return fmt.Sprintf("local(%s)", s.dir)
}

// PartitionFile is a partition file being written.
type PartitionFile struct {
	file  *os.File
	path  string
	final string
	id    int
	done  bool
}

func (f *PartitionFile) Write(p []byte) (int, error) {
	n, err := f.file.Write(p)
	if err != nil {
		return n, errdefs.NewIOError("write", f.path, f.id, err)
	}
	return n, nil
}

// Commit closes the file and moves it to its final name.
func (f *PartitionFile) Commit() error {
	if f.done {
		return nil
	}
	f.done = true

	if err := f.file.Close(); err != nil {
		_ = os.Remove(f.path)
		return errdefs.NewIOError("close", f.path, f.id, err)
	}
	if err := os.Rename(f.path, f.final); err != nil {
		_ = os.Remove(f.path)
		return errdefs.NewIOError("rename", f.final, f.id, err)
	}
	return nil
}

// Close discards the file unless it was committed.
func (f *PartitionFile) Close() error {
	if f.done {
		return nil
	}
	f.done = true

	var errs *multierror.Error
	if err := f.file.Close(); err != nil {
		errs = multierror.Append(errs, errdefs.NewIOError("close", f.path, f.id, err))
	}
	if err := os.Remove(f.path); err != nil {
		errs = multierror.Append(errs, errdefs.NewIOError("remove", f.path, f.id, err))
	}
	return errs.ErrorOrNil()
}
