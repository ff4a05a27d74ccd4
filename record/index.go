package record

import "cmp"

// IndexEntry stands in for a record during the first pass: its key and the
// byte offset of its line in the source file. The value stays on disk.
type IndexEntry struct {
	Key    uint64
	Offset int64
}

// CompareEntries orders index entries by key only.
func CompareEntries(a, b IndexEntry) int {
	return cmp.Compare(a.Key, b.Key)
}

// EntrySize is the in-memory size of an IndexEntry.
const EntrySize = 16
