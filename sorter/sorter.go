// Package sorter sorts one raw partition in memory and writes it as a
// sorted table.
package sorter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/google/btree"

	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/record"
	"github.com/davidvella/logclean/sstable"
)

const (
	readSize   = 64 * 1024
	checkEvery = 4096
	// btreeDegree matches the default of google/btree.
	btreeDegree = 32
)

// Options configures Sort.
type Options struct {
	// Dedup drops equal records inside the partition. The merge stage
	// removes duplicates either way; this only shrinks the sorted file.
	Dedup bool
	// SizeHint is the expected number of records, used to size buffers.
	SizeHint int
	// Table configures the sorted table written to w.
	Table *sstable.Options
}

// Result describes a sorted partition.
type Result struct {
	// Records is the number of lines read.
	Records int
	// Written is the number of records in the table.
	Written int
	First   uint64
	Last    uint64
}

// Sort reads the raw partition id from r and writes its records to w in
// ascending (key, value) order.
func Sort(ctx context.Context, id int, r io.Reader, w io.Writer, opts Options) (Result, error) {
	var (
		res    Result
		tree   *btree.BTreeG[record.Record]
		recs   []record.Record
		offset int64
	)
	if opts.Dedup {
		tree = btree.NewG[record.Record](btreeDegree, record.Record.Less)
	} else {
		recs = make([]record.Record, 0, opts.SizeHint)
	}

	br := bufio.NewReaderSize(r, readSize)
	for {
		if res.Records%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		line, err := br.ReadSlice('\n')
		if errors.Is(err, io.EOF) && len(line) == 0 {
			break
		}
		if err != nil && !errors.Is(err, io.EOF) {
			if errors.Is(err, bufio.ErrBufferFull) {
				return res, &errdefs.InvariantViolation{Partition: id, Offset: offset, Detail: "raw line too long", Err: err}
			}
			return res, errdefs.NewIOError("read", "raw", id, err)
		}

		rec, perr := record.ParseLine(line[:len(line)-trailing(line)])
		if perr != nil {
			return res, &errdefs.InvariantViolation{Partition: id, Offset: offset, Detail: "raw line does not parse", Err: perr}
		}
		offset += int64(len(line))
		res.Records++

		if tree != nil {
			tree.ReplaceOrInsert(rec)
		} else {
			recs = append(recs, rec)
		}
	}

	tw, err := sstable.OpenWriter(w, opts.Table)
	if err != nil {
		return res, errdefs.NewIOError("write", "sorted", id, err)
	}

	var addErr error
	add := func(rec record.Record) bool {
		if addErr = tw.Add(rec); addErr != nil {
			return false
		}
		if tw.Count() == 1 {
			res.First = rec.Key
		}
		res.Last = rec.Key
		return true
	}

	if tree != nil {
		tree.Ascend(add)
	} else {
		slices.SortFunc(recs, record.Compare)
		for _, rec := range recs {
			if !add(rec) {
				break
			}
		}
	}

	if addErr != nil {
		return res, wrapTableErr(id, addErr)
	}
	if err := tw.Close(); err != nil {
		return res, wrapTableErr(id, err)
	}
	res.Written = int(tw.Count())

	return res, nil
}

func trailing(line []byte) int {
	if len(line) > 0 && line[len(line)-1] == '\n' {
		return 1
	}
	return 0
}

func wrapTableErr(id int, err error) error {
	if errors.Is(err, sstable.ErrOutOfOrder) {
		return &errdefs.InvariantViolation{Partition: id, Offset: -1, Detail: "sorted records out of order", Err: err}
	}
	return errdefs.NewIOError("write", "sorted", id, fmt.Errorf("sorted table: %w", err))
}
