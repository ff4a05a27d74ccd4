package sstable

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sync"

	"github.com/davidvella/logclean/record"
	"github.com/davidvella/logclean/recordio"
)

// Common errors that can be returned by SSTable operations.
var (
	ErrTableClosed    = errors.New("sstable: table already closed")
	ErrCorruptedTable = errors.New("sstable: corrupted table data")
	ErrOutOfOrder     = errors.New("sstable: records must be written in sorted order")
	ErrCountMismatch  = errors.New("sstable: record count does not match footer")
)

// File format constants.
const (
	magicHeader    = int64(0x4C435354) // "LCST" in hex
	magicFooter    = int64(0x4C434E44) // "LCND" in hex
	formatVersion  = int64(2)
	headerSize     = int64(16)
	footerSize     = int64(40)
	defaultBufSize = 64 * 1024
)

// Options configures the behavior of an SSTable.
type Options struct {
	// BufferSize is the size of the read/write buffer.
	BufferSize int
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufSize
	}
	return opts
}

type footer struct {
	// dataEnd is the offset just past the last record.
	dataEnd int64
	count       int64
	firstKey    uint64
	lastKey     uint64
}

// TableWriter writes a sorted table.
type TableWriter struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	bw      recordio.BinaryWriter
	closed  bool
	dataEnd int64
	count   int64
	first   record.Record
	last    record.Record
}

// OpenWriter initializes a new TableWriter on w and writes the header.
func OpenWriter(w io.Writer, opts *Options) (*TableWriter, error) {
	if w == nil {
		return nil, errors.New("sstable: writer cannot be nil")
	}

	o := opts.withDefaults()
	buf := bufio.NewWriterSize(w, o.BufferSize)
	writer := &TableWriter{
		buf:     buf,
		bw:      recordio.NewBinaryWriter(buf),
		dataEnd: headerSize,
	}

	if err := writer.writeHeader(); err != nil {
		return nil, fmt.Errorf("sstable: failed to write header: %w", err)
	}

	return writer, nil
}

func (w *TableWriter) writeHeader() error {
	if _, err := w.bw.WriteInt64(magicHeader); err != nil {
		return err
	}
	if _, err := w.bw.WriteInt64(formatVersion); err != nil {
		return err
	}
	return nil
}

// Add appends a record. Records must arrive in ascending (key, value)
// order; equal records are accepted.
func (w *TableWriter) Add(rec record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrTableClosed
	}

	if w.count > 0 && record.Compare(rec, w.last) < 0 {
		return fmt.Errorf("%w: %q after %q", ErrOutOfOrder, rec.String(), w.last.String())
	}

	n, err := recordio.Write(w.buf, rec)
	if err != nil {
		return fmt.Errorf("sstable: failed to write record: %w", err)
	}

	if w.count == 0 {
		w.first = rec
	}
	w.last = rec
	w.dataEnd += n
	w.count++

	return nil
}

// Count returns the number of records added so far.
func (w *TableWriter) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close writes the footer and flushes the buffer. The underlying writer is
// left open.
func (w *TableWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	return w.writeFooter()
}

func (w *TableWriter) writeFooter() error {
	if _, err := w.bw.WriteInt64(w.dataEnd); err != nil {
		return err
	}
	if _, err := w.bw.WriteInt64(w.count); err != nil {
		return err
	}
	if _, err := w.bw.WriteUint64(w.first.Key); err != nil {
		return err
	}
	if _, err := w.bw.WriteUint64(w.last.Key); err != nil {
		return err
	}
	if _, err := w.bw.WriteInt64(magicFooter); err != nil {
		return err
	}

	return w.buf.Flush()
}

// TableReader reads a sorted table.
type TableReader struct {
	mu     sync.Mutex
	buf    *seekBuffer
	br     recordio.BinaryReader
	closer io.Closer
	closed bool
	footer footer
	err    error
}

// OpenReader initializes a new TableReader and validates the header and
// the footer.
func OpenReader(rs io.ReadSeeker, opts *Options) (*TableReader, error) {
	if rs == nil {
		return nil, errors.New("sstable: ReadSeeker cannot be nil")
	}

	o := opts.withDefaults()
	buf := newSeekBuffer(rs, o.BufferSize)
	reader := &TableReader{
		buf: buf,
		br:  recordio.NewBinaryReader(buf),
	}

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to size table: %w", err)
	}
	if size < headerSize+footerSize {
		return nil, fmt.Errorf("%w: file is too small (%d bytes)", ErrCorruptedTable, size)
	}

	if err := reader.loadTable(size); err != nil {
		return nil, fmt.Errorf("sstable: failed to load table: %w", err)
	}

	return reader, nil
}

// OpenReaderFile opens the table at path. Close closes the file.
func OpenReaderFile(path string, opts *Options) (*TableReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to open file for reading: %w", err)
	}

	reader, err := OpenReader(file, opts)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("sstable: failed to initialize reader: %w", err)
	}
	reader.closer = file

	return reader, nil
}

func (r *TableReader) loadTable(size int64) error {
	if err := r.checkHeader(); err != nil {
		return err
	}

	f, err := r.readFooter()
	if err != nil {
		return err
	}
	if f.dataEnd < headerSize || f.dataEnd != size-footerSize || f.count < 0 {
		return ErrCorruptedTable
	}
	r.footer = f

	return nil
}

func (r *TableReader) checkHeader() error {
	if _, err := r.buf.Seek(0, io.SeekStart); err != nil {
		return err
	}

	header, err := r.br.ReadInt64()
	if err != nil {
		return fmt.Errorf("sstable: invalid header: %w", err)
	}
	if header != magicHeader {
		return ErrCorruptedTable
	}

	version, err := r.br.ReadInt64()
	if err != nil {
		return fmt.Errorf("sstable: invalid version: %w", err)
	}
	if version != formatVersion {
		return fmt.Errorf("sstable: unsupported version %d", version)
	}

	return nil
}

func (r *TableReader) readFooter() (footer, error) {
	var f footer
	var err error

	if _, err = r.buf.Seek(-footerSize, io.SeekEnd); err != nil {
		return f, err
	}
	if f.dataEnd, err = r.br.ReadInt64(); err != nil {
		return f, err
	}
	if f.count, err = r.br.ReadInt64(); err != nil {
		return f, err
	}
	if f.firstKey, err = r.br.ReadUint64(); err != nil {
		return f, err
	}
	if f.lastKey, err = r.br.ReadUint64(); err != nil {
		return f, err
	}

	magic, err := r.br.ReadInt64()
	if err != nil {
		return f, err
	}
	if magic != magicFooter {
		return f, ErrCorruptedTable
	}

	return f, nil
}

// Count returns the number of records recorded in the footer.
func (r *TableReader) Count() int64 {
	return r.footer.count
}

// Bounds returns the first and last key of the table. ok is false for an
// empty table.
func (r *TableReader) Bounds() (first, last uint64, ok bool) {
	if r.footer.count == 0 {
		return 0, 0, false
	}
	return r.footer.firstKey, r.footer.lastKey, true
}

// All returns an iterator over all records in the table. Iteration stops at
// the first error, which Err reports afterwards.
func (r *TableReader) All() iter.Seq[record.Record] {
	return func(yield func(record.Record) bool) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.closed {
			r.err = ErrTableClosed
			return
		}
		r.err = nil

		if _, err := r.buf.Seek(headerSize, io.SeekStart); err != nil {
			r.err = fmt.Errorf("sstable: seek error: %w", err)
			return
		}

		rr := recordio.NewReader(io.LimitReader(r.buf, r.footer.dataEnd-headerSize))
		var read int64
		for rec := range rr.All() {
			read++
			if !yield(rec) {
				return
			}
		}
		if err := rr.Err(); err != nil {
			r.err = fmt.Errorf("sstable: record parse error: %w", err)
			return
		}
		if read != r.footer.count {
			r.err = fmt.Errorf("%w: read %d, footer %d", ErrCountMismatch, read, r.footer.count)
		}
	}
}

// Err returns the error that stopped the last iteration, if any.
func (r *TableReader) Err() error {
	return r.err
}

// Close closes the reader and, when opened by OpenReaderFile, its file.
func (r *TableReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
