package compactor

import (
	"bufio"
	"context"
	"io"

	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/loser"
	"github.com/davidvella/logclean/record"
)

const (
	writeSize  = 256 * 1024
	checkEvery = 4096
)

// Sequence is a sorted run of records that reports, after iteration, the
// error that ended it early. *sstable.TableReader is a Sequence.
type Sequence interface {
	loser.Sequence[record.Record]
	Err() error
}

// Input is the sorted sequence of one partition.
type Input struct {
	ID  int
	Seq Sequence
}

// Result counts the records of a compaction.
type Result struct {
	Read       int
	Written    int
	Duplicates int
}

// Compact writes the records of every group to w as text lines in
// ascending order, dropping a record equal to the one written before it.
// Groups are consumed in order and must not overlap; inputs inside a group
// may, and are merged with a loser tree.
func Compact(ctx context.Context, w io.Writer, groups ...[]Input) (Result, error) {
	m := NewWriter(w)
	for _, group := range groups {
		if err := m.Merge(ctx, group...); err != nil {
			return m.Result(), err
		}
	}
	return m.Result(), m.Flush()
}

// Writer is an incremental Compact: groups are handed over one Merge call
// at a time, so that only the files of one group need to be open.
type Writer struct {
	bw      *bufio.Writer
	res     Result
	last    record.Record
	started bool
	line    []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, writeSize)}
}

// Result returns the counts so far.
func (m *Writer) Result() Result {
	return m.res
}

// Flush writes buffered lines to the underlying writer.
func (m *Writer) Flush() error {
	if err := m.bw.Flush(); err != nil {
		return errdefs.NewIOError("write", "output", errdefs.NoPartition, err)
	}
	return nil
}

// Merge writes the records of one group. Its keys must not be smaller than
// those of earlier groups.
func (m *Writer) Merge(ctx context.Context, group ...Input) error {
	if len(group) == 0 {
		return nil
	}

	var err error
	if len(group) == 1 {
		for rec := range group[0].Seq.All() {
			if err = m.emit(ctx, group[0].ID, rec); err != nil {
				break
			}
		}
	} else {
		for src := range merged(group).All() {
			if err = m.emit(ctx, src.id, src.rec); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}

	for _, in := range group {
		if err := in.Seq.Err(); err != nil {
			return errdefs.NewIOError("read", "sorted", in.ID, err)
		}
	}
	return nil
}

// sourced is a record and the partition it was read from.
type sourced struct {
	rec record.Record
	id  int
}

func compareSourced(a, b sourced) int {
	return record.Compare(a.rec, b.rec)
}

// merged interleaves the inputs of a group with a loser tree.
func merged(group []Input) *loser.Tree[sourced] {
	seqs := make([]loser.Sequence[sourced], len(group))
	for i, in := range group {
		seqs[i] = loser.SeqFunc[sourced](func(yield func(sourced) bool) {
			for rec := range in.Seq.All() {
				if !yield(sourced{rec: rec, id: in.ID}) {
					return
				}
			}
		})
	}
	return loser.New(seqs, sourced{rec: record.Max, id: errdefs.NoPartition}, compareSourced)
}

func (m *Writer) emit(ctx context.Context, id int, rec record.Record) error {
	if m.res.Read%checkEvery == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	m.res.Read++

	if m.started {
		switch c := record.Compare(rec, m.last); {
		case c == 0:
			m.res.Duplicates++
			return nil
		case c < 0:
			return &errdefs.InvariantViolation{
				Partition: id,
				Offset:    int64(m.res.Read - 1),
				Expected:  "after " + m.last.String(),
				Actual:    rec.String(),
				Detail:    "merged records out of order",
			}
		}
	}
	m.last, m.started = rec, true

	m.line = record.AppendLine(m.line[:0], rec)
	if _, err := m.bw.Write(m.line); err != nil {
		return errdefs.NewIOError("write", "output", errdefs.NoPartition, err)
	}
	m.res.Written++
	return nil
}
