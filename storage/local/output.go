package local

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/davidvella/logclean/errdefs"
)

const outputBufSize = 256 * 1024

// Output is a file written under a temporary name next to its final path
// and renamed into place by Publish. Until then the final path is
// untouched.
type Output struct {
	file      *os.File
	buf       *bufio.Writer
	path      string
	finalPath string
	done      bool
}

// CreateOutput creates the temporary file for finalPath. tag makes the
// temporary name unique per run.
func CreateOutput(_ context.Context, finalPath, tag string) (*Output, error) {
	dir, base := filepath.Split(finalPath)
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, "."+base+".tmp-"+tag)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errdefs.NewIOError("create", path, errdefs.NoPartition, err)
	}

	return &Output{
		file:      file,
		buf:       bufio.NewWriterSize(file, outputBufSize),
		path:      path,
		finalPath: finalPath,
	}, nil
}

// Path returns the temporary file name.
func (o *Output) Path() string {
	return o.path
}

func (o *Output) Write(p []byte) (int, error) {
	n, err := o.buf.Write(p)
	if err != nil {
		return n, errdefs.NewIOError("write", o.path, errdefs.NoPartition, err)
	}
	return n, nil
}

// Publish flushes, syncs and closes the temporary file, then renames it to
// the final path.
func (o *Output) Publish(_ context.Context) error {
	if o.done {
		return nil
	}
	o.done = true

	if err := o.buf.Flush(); err != nil {
		return o.fail("write", err)
	}
	if err := o.file.Sync(); err != nil {
		return o.fail("sync", err)
	}
	if err := o.file.Close(); err != nil {
		_ = os.Remove(o.path)
		return errdefs.NewIOError("close", o.path, errdefs.NoPartition, err)
	}
	if err := os.Rename(o.path, o.finalPath); err != nil {
		_ = os.Remove(o.path)
		return errdefs.NewIOError("rename", o.finalPath, errdefs.NoPartition, err)
	}
	return nil
}

// Abort closes and removes the temporary file. It is a no-op after
// Publish.
func (o *Output) Abort() error {
	if o.done {
		return nil
	}
	o.done = true

	var errs *multierror.Error
	if err := o.file.Close(); err != nil {
		errs = multierror.Append(errs, errdefs.NewIOError("close", o.path, errdefs.NoPartition, err))
	}
	if err := os.Remove(o.path); err != nil && !os.IsNotExist(err) {
		errs = multierror.Append(errs, errdefs.NewIOError("remove", o.path, errdefs.NoPartition, err))
	}
	return errs.ErrorOrNil()
}

func (o *Output) fail(op string, err error) error {
	ioErr := errdefs.NewIOError(op, o.path, errdefs.NoPartition, err)
	_ = o.file.Close()
	_ = os.Remove(o.path)
	return ioErr
}
