package sorter

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/record"
	"github.com/davidvella/logclean/sstable"
)

func readTable(t *testing.T, data []byte) []record.Record {
	t.Helper()
	r, err := sstable.OpenReader(bytes.NewReader(data), nil)
	require.NoError(t, err)
	got := slices.Collect(r.All())
	require.NoError(t, r.Err())
	return got
}

func TestSort(t *testing.T) {
	tests := []struct {
		name  string
		input string
		dedup bool
		want  []record.Record
		res   Result
	}{
		{
			name:  "empty partition",
			input: "",
			want:  nil,
			res:   Result{},
		},
		{
			name:  "keys then values",
			input: "5 b\n3 a\n5 a\n",
			want:  []record.Record{{Key: 3, Value: "a"}, {Key: 5, Value: "a"}, {Key: 5, Value: "b"}},
			res:   Result{Records: 3, Written: 3, First: 3, Last: 5},
		},
		{
			name:  "numeric key order",
			input: "10 x\n9 x\n100 x\n",
			want:  []record.Record{{Key: 9, Value: "x"}, {Key: 10, Value: "x"}, {Key: 100, Value: "x"}},
			res:   Result{Records: 3, Written: 3, First: 9, Last: 100},
		},
		{
			name:  "byte-wise value order",
			input: "1 b\n1 B\n1 a\n1 \n",
			want:  []record.Record{{Key: 1, Value: ""}, {Key: 1, Value: "B"}, {Key: 1, Value: "a"}, {Key: 1, Value: "b"}},
			res:   Result{Records: 4, Written: 4, First: 1, Last: 1},
		},
		{
			name:  "duplicates kept without dedup",
			input: "3 a\n3 a\n5 b\n",
			want:  []record.Record{{Key: 3, Value: "a"}, {Key: 3, Value: "a"}, {Key: 5, Value: "b"}},
			res:   Result{Records: 3, Written: 3, First: 3, Last: 5},
		},
		{
			name:  "duplicates collapsed with dedup",
			input: "3 a\n5 b\n3 a\n5 b\n5 a\n",
			dedup: true,
			want:  []record.Record{{Key: 3, Value: "a"}, {Key: 5, Value: "a"}, {Key: 5, Value: "b"}},
			res:   Result{Records: 5, Written: 3, First: 3, Last: 5},
		},
		{
			name:  "final line without terminator",
			input: "2 b\n1 a",
			want:  []record.Record{{Key: 1, Value: "a"}, {Key: 2, Value: "b"}},
			res:   Result{Records: 2, Written: 2, First: 1, Last: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			res, err := Sort(context.Background(), 0, strings.NewReader(tt.input), &out, Options{Dedup: tt.dedup})
			require.NoError(t, err)
			assert.Equal(t, tt.res, res)
			assert.Equal(t, tt.want, readTable(t, out.Bytes()))
		})
	}
}

func TestSort_LargePartition(t *testing.T) {
	var in strings.Builder
	for i := 5000; i > 0; i-- {
		in.WriteString(record.Record{Key: uint64(i % 300), Value: "v"}.String())
		in.WriteByte('\n')
	}

	var plain, deduped bytes.Buffer
	res, err := Sort(context.Background(), 1, strings.NewReader(in.String()), &plain, Options{SizeHint: 5000})
	require.NoError(t, err)
	assert.Equal(t, 5000, res.Written)

	got := readTable(t, plain.Bytes())
	assert.True(t, slices.IsSortedFunc(got, record.Compare))

	res, err = Sort(context.Background(), 1, strings.NewReader(in.String()), &deduped, Options{Dedup: true})
	require.NoError(t, err)
	assert.Equal(t, 5000, res.Records)
	assert.Equal(t, 300, res.Written)
	assert.Equal(t, uint64(0), res.First)
	assert.Equal(t, uint64(299), res.Last)
}

func TestSort_UnparsableLine(t *testing.T) {
	_, err := Sort(context.Background(), 4, strings.NewReader("1 a\nbroken\n"), &bytes.Buffer{}, Options{})
	require.Error(t, err)

	var iv *errdefs.InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, 4, iv.Partition)
	assert.Equal(t, int64(4), iv.Offset)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSort_WriteError(t *testing.T) {
	_, err := Sort(context.Background(), 2, strings.NewReader("1 a\n"), failingWriter{}, Options{})
	require.Error(t, err)
	assert.True(t, errdefs.IsIO(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestSort_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Sort(ctx, 0, strings.NewReader("1 a\n"), &bytes.Buffer{}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
