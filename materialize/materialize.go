// Package materialize copies the lines of a partition out of the source log
// into a raw partition file, reading them back by byte offset.
package materialize

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/partition"
	"github.com/davidvella/logclean/record"
	"github.com/davidvella/logclean/storage/local"
)

const (
	windowSize = 256 * 1024
	writeSize  = 64 * 1024
	checkEvery = 4096
	// maxLineSpan is the longest line plus a "\r\n" terminator.
	maxLineSpan = record.MaxLineLen + 2
)

var (
	errPastEnd      = errors.New("offset past end of source")
	errNoTerminator = errors.New("no line terminator within the longest line length")
)

// Store creates partition files.
type Store interface {
	Create(ctx context.Context, stage local.Stage, id int) (*local.PartitionFile, error)
}

// Materializer writes raw partition files. It is safe for concurrent use
// when its source is, which holds for *os.File.
type Materializer struct {
	source io.ReaderAt
	size   int64
	store  Store
}

// New returns a Materializer reading lines from source, which is size
// bytes long.
func New(source io.ReaderAt, size int64, store Store) *Materializer {
	return &Materializer{source: source, size: size, store: store}
}

// Materialize writes the line of every entry of p to the raw file of p, in
// canonical form, and returns the number of lines written. Lines are read
// in offset order so that reads are mostly sequential. The raw file is only
// committed when every line was copied.
func (m *Materializer) Materialize(ctx context.Context, p partition.Partition) (int, error) {
	entries := slices.Clone(p.Entries)
	slices.SortFunc(entries, func(a, b record.IndexEntry) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	w, err := m.store.Create(ctx, local.Raw, p.ID)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	var (
		n       int
		bw      = bufio.NewWriterSize(w, writeSize)
		win     = &window{src: m.source, size: m.size, buf: make([]byte, windowSize)}
		scratch = make([]byte, 0, maxLineSpan)
	)

	for i, entry := range entries {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}

		rec, err := m.read(win, p.ID, entry)
		if err != nil {
			return n, err
		}

		scratch = record.AppendLine(scratch[:0], rec)
		if _, err := bw.Write(scratch); err != nil {
			return n, errdefs.NewIOError("write", "raw", p.ID, err)
		}
		n++
	}

	if err := bw.Flush(); err != nil {
		return n, errdefs.NewIOError("write", "raw", p.ID, err)
	}
	if err := w.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

func (m *Materializer) read(win *window, id int, entry record.IndexEntry) (record.Record, error) {
	line, err := win.line(entry.Offset)
	switch {
	case errors.Is(err, errPastEnd), errors.Is(err, errNoTerminator):
		return record.Record{}, &errdefs.InvariantViolation{
			Partition: id,
			Offset:    entry.Offset,
			Detail:    "indexed line not found",
			Err:       err,
		}
	case err != nil:
		return record.Record{}, errdefs.NewIOError("read", "source", id, err)
	}

	rec, err := record.ParseLine(line)
	if err != nil {
		return record.Record{}, &errdefs.InvariantViolation{
			Partition: id,
			Offset:    entry.Offset,
			Detail:    "indexed line no longer parses",
			Err:       err,
		}
	}
	if rec.Key != entry.Key {
		return record.Record{}, &errdefs.InvariantViolation{
			Partition: id,
			Offset:    entry.Offset,
			Expected:  strconv.FormatUint(entry.Key, 10),
			Actual:    strconv.FormatUint(rec.Key, 10),
			Detail:    "key mismatch",
		}
	}

	return rec, nil
}

// window caches a span of the source so that nearby offsets are served
// without another read.
type window struct {
	src  io.ReaderAt
	size int64
	buf  []byte
	base int64
	n    int
}

// line returns the line starting at off, without its '\n'. The final line
// of the source may lack a terminator.
func (w *window) line(off int64) ([]byte, error) {
	if off < 0 || off >= w.size {
		return nil, errPastEnd
	}

	end := min(off+maxLineSpan, w.size)
	if off < w.base || end > w.base+int64(w.n) {
		n, err := w.src.ReadAt(w.buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		w.base, w.n = off, n
		if off+int64(n) < end {
			return nil, fmt.Errorf("short read at offset %d: %w", off, io.ErrUnexpectedEOF)
		}
	}

	chunk := w.buf[off-w.base : end-w.base]
	if i := bytes.IndexByte(chunk, '\n'); i >= 0 {
		return chunk[:i], nil
	}
	if end == w.size {
		return chunk, nil
	}
	return nil, errNoTerminator
}
