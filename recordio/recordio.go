package recordio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/davidvella/logclean/record"
)

var (
	Uint64Size = int64(binary.Size(uint64(0)))
	Int64Size  = int64(binary.Size(int64(0)))
	// MagicBytes prefix every encoded record (KVR).
	MagicBytes           = []byte{0x4B, 0x56, 0x52}
	ErrInvalidMagicBytes = errors.New("invalid magic bytes - not a valid recordio stream")
	ErrValueTooLong      = errors.New("encoded value exceeds the maximum value length")
)

// BinaryWriter handles writing binary data with error handling.
type BinaryWriter struct {
	w io.Writer
}

func NewBinaryWriter(w io.Writer) BinaryWriter {
	return BinaryWriter{w: w}
}

func (bw BinaryWriter) WriteString(s string) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, uint64(len(s))); err != nil {
		return 0, fmt.Errorf("error writing string length: %w", err)
	}

	n, err := io.WriteString(bw.w, s)
	if err != nil {
		return Uint64Size, fmt.Errorf("error writing string content: %w", err)
	}

	return Uint64Size + int64(n), nil
}

func (bw BinaryWriter) WriteUint64(u uint64) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, u); err != nil {
		return 0, err
	}
	return Uint64Size, nil
}

func (bw BinaryWriter) WriteInt64(i int64) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, i); err != nil {
		return 0, err
	}
	return Int64Size, nil
}

// BinaryReader handles reading binary data with error handling.
type BinaryReader struct {
	r io.Reader
}

func NewBinaryReader(r io.Reader) BinaryReader {
	return BinaryReader{r: r}
}

// ReadString reads a length-prefixed string of at most maxLen bytes.
func (br BinaryReader) ReadString(maxLen uint64) (string, error) {
	var length uint64
	if err := binary.Read(br.r, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("error reading string length: %w", err)
	}
	if length > maxLen {
		return "", fmt.Errorf("error reading string length %d: %w", length, ErrValueTooLong)
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(br.r, b); err != nil {
		return "", fmt.Errorf("error reading string content: %w", err)
	}
	return string(b), nil
}

func (br BinaryReader) ReadUint64() (uint64, error) {
	var value uint64
	err := binary.Read(br.r, binary.LittleEndian, &value)
	return value, err
}

func (br BinaryReader) ReadInt64() (int64, error) {
	var value int64
	err := binary.Read(br.r, binary.LittleEndian, &value)
	return value, err
}

// Write writes a single record to the writer.
func Write(w io.Writer, rec record.Record) (int64, error) {
	var totalBytes int64

	mn, err := w.Write(MagicBytes)
	if err != nil {
		return int64(mn), fmt.Errorf("failed to write magic bytes: %w", err)
	}
	totalBytes += int64(mn)

	bw := NewBinaryWriter(w)

	n, err := bw.WriteUint64(rec.Key)
	if err != nil {
		return totalBytes, fmt.Errorf("error writing key: %w", err)
	}
	totalBytes += n

	n, err = bw.WriteString(rec.Value)
	if err != nil {
		return totalBytes, fmt.Errorf("error writing value: %w", err)
	}
	totalBytes += n

	return totalBytes, nil
}

// ReadRecord reads a single record from the reader. It returns io.EOF
// unwrapped only when r is exhausted before the first byte; a stream that
// ends inside a record yields io.ErrUnexpectedEOF.
func ReadRecord(r io.Reader) (record.Record, error) {
	magicBytes := make([]byte, len(MagicBytes))
	if _, err := io.ReadFull(r, magicBytes); err != nil {
		if err == io.EOF { //nolint:errorlint // io.ReadFull returns io.EOF unwrapped.
			return record.Record{}, io.EOF
		}
		return record.Record{}, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if !bytes.Equal(magicBytes, MagicBytes) {
		return record.Record{}, ErrInvalidMagicBytes
	}

	br := NewBinaryReader(r)

	key, err := br.ReadUint64()
	if err != nil {
		return record.Record{}, fmt.Errorf("error reading key: %w", noEOF(err))
	}

	value, err := br.ReadString(record.MaxValueLen)
	if err != nil {
		return record.Record{}, fmt.Errorf("error reading value: %w", noEOF(err))
	}

	return record.Record{Key: key, Value: value}, nil
}

// noEOF turns an end of stream inside a record into io.ErrUnexpectedEOF.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", io.ErrUnexpectedEOF, err)
	}
	return err
}

// Reader iterates over consecutive records. Iteration stops at the end of
// the stream or at the first error, which Err reports.
type Reader struct {
	r   io.Reader
	err error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// All returns an iterator over the remaining records.
func (r *Reader) All() iter.Seq[record.Record] {
	return func(yield func(record.Record) bool) {
		for r.err == nil {
			rec, err := ReadRecord(r.r)
			if err != nil {
				if err != io.EOF { //nolint:errorlint // ReadRecord returns io.EOF unwrapped.
					r.err = err
				}
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Err returns the first error met by All, or nil at a clean end of stream.
func (r *Reader) Err() error {
	return r.err
}
