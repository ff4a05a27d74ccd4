// Package generate writes mock logs: random lowercase values keyed by Unix
// timestamps scattered around a base time.
package generate

import (
	"bufio"
	"context"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/record"
	"github.com/davidvella/logclean/storage/local"
)

const checkEvery = 4096

// Options shapes a mock log.
type Options struct {
	Lines int
	// MinLength and MaxLength bound the value length, inclusive.
	MinLength int
	MaxLength int
	// Charset holds the bytes values are drawn from.
	Charset string
	// Base is the center of the key range, as a Unix timestamp. Zero means
	// now.
	Base uint64
	// Delta is the largest distance, in seconds, between a key and Base.
	// Zero gives every line the same key.
	Delta uint64
	// Seed makes the output reproducible. Zero picks a random seed.
	Seed uint64
}

func DefaultOptions() Options {
	return Options{
		Lines:     10_000,
		MinLength: 4,
		MaxLength: 4,
		Charset:   "abc",
		Delta:     500,
	}
}

// Validate reports options that cannot produce a valid log.
func (o Options) Validate() error {
	switch {
	case o.Lines < 0:
		return errdefs.NewConfigError("lines", "must not be negative, got %d", o.Lines)
	case o.MinLength < 0 || o.MinLength > o.MaxLength:
		return errdefs.NewConfigError("min_length", "must be between 0 and max_length, got %d", o.MinLength)
	case o.MaxLength > record.MaxValueLen:
		return errdefs.NewConfigError("max_length", "must be at most %d, got %d", record.MaxValueLen, o.MaxLength)
	case o.Delta > 1<<62:
		return errdefs.NewConfigError("delta", "must be at most 2^62, got %d", o.Delta)
	case o.Base > math.MaxUint64-o.Delta:
		return errdefs.NewConfigError("base", "base plus delta must fit in 64 bits, got %d + %d", o.Base, o.Delta)
	case o.MaxLength > 0 && o.Charset == "":
		return errdefs.NewConfigError("charset", "must not be empty")
	}
	for i := 0; i < len(o.Charset); i++ {
		if c := o.Charset[i]; c == record.Separator || c == '\n' || c == '\r' {
			return errdefs.NewConfigError("charset", "must not contain spaces or line breaks")
		}
	}
	return nil
}

// Generate writes opts.Lines lines to w.
func Generate(ctx context.Context, w io.Writer, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	base := opts.Base
	if base == 0 {
		base = uint64(time.Now().Unix())
	}
	low := base - min(base, opts.Delta)
	span := base + opts.Delta - low + 1

	var (
		bw    = bufio.NewWriter(w)
		line  []byte
		value = make([]byte, opts.MaxLength)
	)
	for i := range opts.Lines {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		n := opts.MinLength + rng.IntN(opts.MaxLength-opts.MinLength+1)
		for j := range n {
			value[j] = opts.Charset[rng.IntN(len(opts.Charset))]
		}
		rec := record.Record{Key: low + rng.Uint64N(span), Value: string(value[:n])}

		line = record.AppendLine(line[:0], rec)
		if _, err := bw.Write(line); err != nil {
			return errdefs.NewIOError("write", "mock log", errdefs.NoPartition, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return errdefs.NewIOError("write", "mock log", errdefs.NoPartition, err)
	}
	return nil
}

// GenerateFile writes a mock log to path. The file appears only once it is
// complete.
func GenerateFile(ctx context.Context, path string, opts Options) error {
	out, err := local.CreateOutput(ctx, path, uuid.New().String())
	if err != nil {
		return err
	}
	defer out.Abort()

	if err := Generate(ctx, out, opts); err != nil {
		return err
	}
	return out.Publish(ctx)
}
