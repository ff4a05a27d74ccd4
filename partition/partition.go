// Package partition orders the key index and slices it into partitions small
// enough to be sorted in memory.
package partition

import (
	"cmp"
	"slices"

	"github.com/davidvella/logclean/errdefs"
	"github.com/davidvella/logclean/partition/strategy"
	"github.com/davidvella/logclean/partition/strategy/composite"
	"github.com/davidvella/logclean/partition/strategy/messagecount"
	"github.com/davidvella/logclean/record"
)

type (
	Information = strategy.Information
	Strategy    = strategy.Strategy
)

// Partition is a run of consecutive entries of the sorted index. Partitions
// are numbered from 0 in increasing key order.
type Partition struct {
	ID      int
	Entries []record.IndexEntry
}

func (p Partition) Len() int {
	return len(p.Entries)
}

// FirstKey returns the smallest key of p, or 0 when p is empty.
func (p Partition) FirstKey() uint64 {
	if len(p.Entries) == 0 {
		return 0
	}
	return p.Entries[0].Key
}

// LastKey returns the largest key of p, or 0 when p is empty.
func (p Partition) LastKey() uint64 {
	if len(p.Entries) == 0 {
		return 0
	}
	return p.Entries[len(p.Entries)-1].Key
}

func (p Partition) Bounds() Bounds {
	return Bounds{ID: p.ID, First: p.FirstKey(), Last: p.LastKey()}
}

// Bounds is the key range of a partition.
type Bounds struct {
	ID    int
	First uint64
	Last  uint64
}

// SortIndex sorts entries by key. Entries with equal keys keep their line
// order.
func SortIndex(entries []record.IndexEntry) {
	slices.SortStableFunc(entries, record.CompareEntries)
}

// Split slices sorted entries into partitions, starting a new one whenever
// s says so. The partitions share the backing array of entries.
func Split(entries []record.IndexEntry, s Strategy) []Partition {
	var (
		partitions []Partition
		start      int
	)

	for i := range entries {
		if i == start {
			continue
		}
		info := Information{RecordCount: i - start, FirstKey: entries[start].Key}
		if s.ShouldRotate(info, entries[i]) {
			partitions = append(partitions, Partition{ID: len(partitions), Entries: entries[start:i:i]})
			start = i
		}
	}
	if start < len(entries) {
		partitions = append(partitions, Partition{ID: len(partitions), Entries: entries[start:]})
	}

	return partitions
}

// Build sorts entries in place and splits them into partitions of at most
// size entries. A size larger than the number of entries yields a single
// partition. Extra strategies may close partitions earlier.
func Build(entries []record.IndexEntry, size int, extra ...Strategy) ([]Partition, error) {
	if size <= 0 {
		return nil, errdefs.NewConfigError("partition_size", "must be positive, got %d", size)
	}

	SortIndex(entries)

	var s Strategy = messagecount.NewStrategy(size)
	if len(extra) > 0 {
		s = composite.NewStrategy(append([]Strategy{s}, extra...)...)
	}

	return Split(entries, s), nil
}

// Plan groups partitions whose key ranges touch, so that a key split across
// partitions is merged rather than concatenated. Groups are returned in key
// order and every partition belongs to exactly one group.
func Plan(bounds []Bounds) [][]Bounds {
	sorted := slices.SortedFunc(slices.Values(bounds), func(a, b Bounds) int {
		return cmp.Compare(a.ID, b.ID)
	})

	var groups [][]Bounds
	for i, b := range sorted {
		if i > 0 {
			last := groups[len(groups)-1]
			if maxLast(last) >= b.First {
				groups[len(groups)-1] = append(last, b)
				continue
			}
		}
		groups = append(groups, []Bounds{b})
	}

	return groups
}

func maxLast(group []Bounds) uint64 {
	var m uint64
	for _, b := range group {
		m = max(m, b.Last)
	}
	return m
}
