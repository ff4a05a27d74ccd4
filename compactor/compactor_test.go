package compactor_test

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidvella/logclean/compactor"
	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/record"
	"github.com/davidvella/logclean/sstable"
)

type List struct {
	list []record.Record
	err  error
}

func NewList(list ...record.Record) *List {
	return &List{list: list}
}

func (it *List) All() iter.Seq[record.Record] {
	return func(yield func(record.Record) bool) {
		for _, i := range it.list {
			if !yield(i) {
				return
			}
		}
	}
}

func (it *List) Err() error { return it.err }

func in(id int, recs ...record.Record) compactor.Input {
	return compactor.Input{ID: id, Seq: NewList(recs...)}
}

func r(key uint64, value string) record.Record {
	return record.Record{Key: key, Value: value}
}

func TestCompact(t *testing.T) {
	tests := []struct {
		name   string
		groups [][]compactor.Input
		want   string
		res    compactor.Result
	}{
		{
			name: "no groups",
			want: "",
		},
		{
			name:   "empty partition",
			groups: [][]compactor.Input{{in(0)}},
			want:   "",
		},
		{
			name: "disjoint partitions are concatenated",
			groups: [][]compactor.Input{
				{in(0, r(3, "a"), r(3, "a"))},
				{in(1, r(5, "a"), r(5, "b"))},
				{in(2, r(7, "z"))},
			},
			want: "3 a\n5 a\n5 b\n7 z\n",
			res:  compactor.Result{Read: 5, Written: 4, Duplicates: 1},
		},
		{
			name: "straddling key is merged within its group",
			groups: [][]compactor.Input{
				{
					in(0, r(3, "a"), r(3, "a"), r(5, "b")),
					in(1, r(5, "a"), r(5, "b")),
				},
			},
			want: "3 a\n5 a\n5 b\n",
			res:  compactor.Result{Read: 5, Written: 3, Duplicates: 2},
		},
		{
			name: "duplicate across group boundary",
			groups: [][]compactor.Input{
				{in(0, r(1, "x"), r(2, "x"))},
				{in(1, r(2, "x"), r(4, "y"))},
			},
			want: "1 x\n2 x\n4 y\n",
			res:  compactor.Result{Read: 4, Written: 3, Duplicates: 1},
		},
		{
			name: "single key repeated",
			groups: [][]compactor.Input{
				{
					in(0, r(10, "x"), r(10, "x")),
					in(1, r(10, "x"), r(10, "x")),
					in(2, r(10, "x")),
				},
			},
			want: "10 x\n",
			res:  compactor.Result{Read: 5, Written: 1, Duplicates: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			res, err := compactor.Compact(context.Background(), &out, tt.groups...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
			assert.Equal(t, tt.res, res)
		})
	}
}

func TestCompact_InversionIsInvariantViolation(t *testing.T) {
	var out bytes.Buffer
	// Concatenating a straddled key instead of merging it.
	_, err := compactor.Compact(context.Background(), &out,
		[]compactor.Input{in(0, r(3, "a"), r(5, "b"))},
		[]compactor.Input{in(1, r(5, "a"))},
	)
	require.Error(t, err)

	var iv *errdefs.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, 1, iv.Partition)
	assert.Equal(t, "5 a", iv.Actual)
	assert.Equal(t, "after 5 b", iv.Expected)
}

func TestCompact_InversionInsideGroupNamesItsPartition(t *testing.T) {
	var out bytes.Buffer
	// Partition 7 is not sorted: 1 b follows 2 a.
	_, err := compactor.Compact(context.Background(), &out, []compactor.Input{
		in(3, r(1, "a"), r(5, "a")),
		in(7, r(2, "a"), r(1, "b")),
	})

	var iv *errdefs.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, 7, iv.Partition)
	assert.Equal(t, "1 b", iv.Actual)
	assert.Equal(t, "after 2 a", iv.Expected)
}

func TestCompact_ReadError(t *testing.T) {
	broken := NewList(r(1, "a"))
	broken.err = errors.New("checksum mismatch")

	_, err := compactor.Compact(context.Background(), &bytes.Buffer{},
		[]compactor.Input{in(0, r(0, "a"))},
		[]compactor.Input{{ID: 1, Seq: broken}, in(2, r(1, "b"))},
	)
	require.Error(t, err)

	var ioErr *errdefs.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, 1, ioErr.Partition)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no space left") }

func TestCompact_WriteError(t *testing.T) {
	_, err := compactor.Compact(context.Background(), failingWriter{}, []compactor.Input{in(0, r(1, "a"))})
	require.Error(t, err)
	assert.True(t, errdefs.IsIO(err))
}

func TestCompact_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := compactor.Compact(ctx, &bytes.Buffer{}, []compactor.Input{in(0, r(1, "a"))})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompact_SortedTables(t *testing.T) {
	tables := [][]record.Record{
		{r(3, "a"), r(3, "a"), r(5, "b")},
		{r(5, "a"), r(5, "b")},
		{r(8, "c")},
	}

	var inputs []compactor.Input
	for i, recs := range tables {
		var buf bytes.Buffer
		w, err := sstable.OpenWriter(&buf, nil)
		require.NoError(t, err)
		for _, rec := range recs {
			require.NoError(t, w.Add(rec))
		}
		require.NoError(t, w.Close())

		reader, err := sstable.OpenReader(bytes.NewReader(buf.Bytes()), nil)
		require.NoError(t, err)
		inputs = append(inputs, compactor.Input{ID: i, Seq: reader})
	}

	var out bytes.Buffer
	res, err := compactor.Compact(context.Background(), &out, inputs[:2], inputs[2:])
	require.NoError(t, err)
	assert.Equal(t, "3 a\n5 a\n5 b\n8 c\n", out.String())
	assert.Equal(t, compactor.Result{Read: 6, Written: 4, Duplicates: 2}, res)
}

func TestWriter_GroupAtATime(t *testing.T) {
	var out bytes.Buffer
	w := compactor.NewWriter(&out)
	ctx := context.Background()

	require.NoError(t, w.Merge(ctx, in(0, r(1, "a"), r(2, "b")), in(1, r(2, "a"), r(2, "b"))))
	require.NoError(t, w.Merge(ctx))
	require.NoError(t, w.Merge(ctx, in(2, r(2, "b"), r(3, "c"))))

	assert.Empty(t, out.String(), "lines stay buffered until Flush")
	require.NoError(t, w.Flush())

	assert.Equal(t, "1 a\n2 a\n2 b\n3 c\n", out.String())
	assert.Equal(t, compactor.Result{Read: 6, Written: 4, Duplicates: 2}, w.Result())
}
