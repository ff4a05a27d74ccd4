// Package compactor produces the cleaned log from the sorted partitions.
//
// Partitions are consumed in key order. A partition whose key range does
// not touch its neighbours is streamed on its own, one file open at a time.
// Partitions that share a key, because the partitioner split a run of equal
// keys between them, are handed over as one group and merged with a loser
// tree so that their values interleave in order.
//
// Deduplication keeps the last written record and drops any record equal to
// it. Since the merged stream is sorted, equal records are always adjacent.
// The last written record lives in a single Writer, one per Compact call.
//
// A record smaller than the last written one means the inputs were not
// sorted or the groups overlap. Compact then fails with an
// errdefs.InvariantViolation instead of writing an unordered file.
//
// Basic usage:
//
//	r0, _ := sstable.OpenReaderFile("sorted/0", nil)
//	r1, _ := sstable.OpenReaderFile("sorted/1", nil)
//	r2, _ := sstable.OpenReaderFile("sorted/2", nil)
//
//	// Partitions 0 and 1 share key 5; partition 2 starts at key 9.
//	res, err := compactor.Compact(ctx, out,
//	    []compactor.Input{{ID: 0, Seq: r0}, {ID: 1, Seq: r1}},
//	    []compactor.Input{{ID: 2, Seq: r2}},
//	)
package compactor
