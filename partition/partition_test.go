package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/partition/strategy/messagecount"
	"github.com/davidvella/logclean/partition/strategy/timewindow"
	"github.com/davidvella/logclean/record"
)

func entries(keys ...uint64) []record.IndexEntry {
	out := make([]record.IndexEntry, len(keys))
	for i, k := range keys {
		out[i] = record.IndexEntry{Key: k, Offset: int64(i)}
	}
	return out
}

func keysOf(partitions []Partition) [][]uint64 {
	var out [][]uint64
	for _, p := range partitions {
		var keys []uint64
		for _, e := range p.Entries {
			keys = append(keys, e.Key)
		}
		out = append(out, keys)
	}
	return out
}

func TestSortIndex_Stable(t *testing.T) {
	idx := entries(5, 3, 5, 3, 5)

	SortIndex(idx)

	assert.Equal(t, []record.IndexEntry{
		{Key: 3, Offset: 1},
		{Key: 3, Offset: 3},
		{Key: 5, Offset: 0},
		{Key: 5, Offset: 2},
		{Key: 5, Offset: 4},
	}, idx)
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name  string
		keys  []uint64
		size  int
		extra []Strategy
		want  [][]uint64
	}{
		{
			name: "empty index",
			keys: nil,
			size: 2,
			want: nil,
		},
		{
			name: "size two",
			keys: []uint64{5, 3, 5, 3, 5},
			size: 2,
			want: [][]uint64{{3, 3}, {5, 5}, {5}},
		},
		{
			name: "single record partitions",
			keys: []uint64{2, 1, 3},
			size: 1,
			want: [][]uint64{{1}, {2}, {3}},
		},
		{
			name: "size equal to count",
			keys: []uint64{2, 1, 3},
			size: 3,
			want: [][]uint64{{1, 2, 3}},
		},
		{
			name: "size larger than count",
			keys: []uint64{2, 1, 3},
			size: 1000,
			want: [][]uint64{{1, 2, 3}},
		},
		{
			name:  "time window closes partitions early",
			keys:  []uint64{100, 101, 400, 401, 402},
			size:  10,
			extra: []Strategy{timewindow.NewStrategy(time.Minute)},
			want:  [][]uint64{{100, 101}, {400, 401, 402}},
		},
		{
			name:  "count still bounds a window",
			keys:  []uint64{100, 101, 102, 103},
			size:  3,
			extra: []Strategy{timewindow.NewStrategy(time.Hour)},
			want:  [][]uint64{{100, 101, 102}, {103}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partitions, err := Build(entries(tt.keys...), tt.size, tt.extra...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keysOf(partitions))

			total := 0
			for i, p := range partitions {
				assert.Equal(t, i, p.ID)
				assert.LessOrEqual(t, p.Len(), tt.size)
				total += p.Len()
			}
			assert.Equal(t, len(tt.keys), total)
		})
	}
}

func TestBuild_PartitionCount(t *testing.T) {
	for _, size := range []int{1, 7, 10, 99, 100} {
		keys := make([]uint64, 100)
		for i := range keys {
			keys[i] = uint64(100 - i)
		}

		partitions, err := Build(entries(keys...), size)
		require.NoError(t, err)
		assert.Len(t, partitions, (100+size-1)/size)
	}
}

func TestBuild_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := Build(entries(1, 2), size)
		require.Error(t, err)
		assert.True(t, errdefs.IsConfig(err))
	}
}

func TestSplit_DoesNotCopy(t *testing.T) {
	idx := entries(1, 2, 3, 4)

	partitions := Split(idx, messagecount.NewStrategy(2))
	require.Len(t, partitions, 2)

	partitions[0].Entries[0].Offset = 42
	assert.Equal(t, int64(42), idx[0].Offset)

	// Appending to a partition never overwrites its neighbour.
	_ = append(partitions[0].Entries, record.IndexEntry{Key: 99})
	assert.Equal(t, uint64(3), idx[2].Key)
}

func TestPartition_Bounds(t *testing.T) {
	p := Partition{ID: 4, Entries: entries(3, 3, 7)}
	assert.Equal(t, Bounds{ID: 4, First: 3, Last: 7}, p.Bounds())
	assert.Equal(t, 3, p.Len())

	empty := Partition{ID: 1}
	assert.Equal(t, Bounds{ID: 1}, empty.Bounds())
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name   string
		bounds []Bounds
		want   [][]Bounds
	}{
		{
			name:   "no partitions",
			bounds: nil,
			want:   nil,
		},
		{
			name:   "disjoint partitions stream alone",
			bounds: []Bounds{{0, 1, 2}, {1, 3, 4}, {2, 5, 9}},
			want:   [][]Bounds{{{0, 1, 2}}, {{1, 3, 4}}, {{2, 5, 9}}},
		},
		{
			name:   "straddling key joins neighbours",
			bounds: []Bounds{{0, 3, 5}, {1, 5, 5}, {2, 5, 8}, {3, 9, 9}},
			want:   [][]Bounds{{{0, 3, 5}, {1, 5, 5}, {2, 5, 8}}, {{3, 9, 9}}},
		},
		{
			name:   "input order does not matter",
			bounds: []Bounds{{1, 5, 6}, {0, 3, 5}},
			want:   [][]Bounds{{{0, 3, 5}, {1, 5, 6}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Plan(tt.bounds))
		})
	}
}
