// Package extract builds the key index of a raw log in one sequential pass.
//
// Only the key and the byte offset of each line are kept in memory; values
// are validated and dropped, to be read again by offset later.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/internal/logctx"
	"github.com/davidvella/logclean/record"
)

const (
	bufSize = 64 * 1024
	// checkEvery is how many lines are read between context checks.
	checkEvery = 4096
)

// ErrLineTooLong is the cause of a FormatError for lines that do not fit
// in the read buffer.
var ErrLineTooLong = fmt.Errorf("line longer than %d bytes", record.MaxLineLen)

// Options controls how malformed lines are handled.
type Options struct {
	// SkipMalformed drops malformed lines instead of failing the run.
	SkipMalformed bool
}

// Result is the index of a log.
type Result struct {
	// Entries holds one entry per valid line, in line order.
	Entries []record.IndexEntry
	// Lines counts every line read, valid or not.
	Lines   int
	Skipped int
}

// Extract reads r to the end and indexes every line.
func Extract(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	return extract(ctx, r, "input", opts)
}

// ExtractFile indexes the file at path, opened read-only.
func ExtractFile(ctx context.Context, path string, opts Options) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, errdefs.NewIOError("open", path, errdefs.NoPartition, err)
	}
	defer file.Close()

	return extract(ctx, file, path, opts)
}

func extract(ctx context.Context, r io.Reader, name string, opts Options) (Result, error) {
	var (
		res    Result
		offset int64
		br     = bufio.NewReaderSize(r, bufSize)
		logger = logctx.FromContext(ctx)
	)

	for {
		if res.Lines%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		line, n, long, err := nextLine(br)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, errdefs.NewIOError("read", name, errdefs.NoPartition, err)
		}

		res.Lines++
		start := offset
		offset += int64(n)

		var key uint64
		perr := ErrLineTooLong
		if !long {
			key, perr = record.ParseKey(line)
		}
		if perr != nil {
			ferr := &errdefs.FormatError{Line: res.Lines, Offset: start, Reason: perr.Error(), Err: perr}
			if !opts.SkipMalformed {
				return res, ferr
			}
			res.Skipped++
			logger.Warn("skipping malformed line",
				slog.Int("line", res.Lines),
				slog.Int64("offset", start),
				slog.String("reason", ferr.Reason))
			continue
		}

		res.Entries = append(res.Entries, record.IndexEntry{Key: key, Offset: start})
	}
}

// nextLine returns the next line without its '\n', the number of bytes it
// occupies in the input and whether it overflowed the buffer, in which case
// line is nil. The last line may lack a terminator. err is io.EOF only when
// no byte is left.
func nextLine(br *bufio.Reader) (line []byte, n int, long bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		n += len(chunk)
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			long = true
			continue
		case errors.Is(err, io.EOF):
			if n == 0 {
				return nil, 0, false, io.EOF
			}
		case err != nil:
			return nil, n, long, err
		}

		if long {
			return nil, n, true, nil
		}
		return bytes.TrimSuffix(chunk, []byte{'\n'}), n, false, nil
	}
}
