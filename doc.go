// Package logclean sorts and deduplicates a key/value log that does not fit
// in memory.
//
// Each line of the log is "<key> <value>", where key is an unsigned 64-bit
// integer and value at most 127 bytes without spaces. The cleaned log holds
// every distinct (key, value) pair exactly once, ordered by key and then by
// value.
//
// A run goes through these stages, each reading the files of the one before:
//
//   - extract: one sequential pass builds an index of (key, byte offset)
//     pairs. Values stay on disk.
//   - partition: the index is sorted by key and cut into partitions of at
//     most the configured size.
//   - sort: every partition's lines are copied out of the source by offset
//     and sorted in memory into a sorted table. Partitions are processed
//     concurrently, as many as the memory budget allows.
//   - merge: the sorted tables are streamed in key order, equal adjacent
//     records are dropped and the result is renamed into place.
//
// Intermediate files live in a working directory and are kept when a run
// fails after partitioning, so that Resume can restart the sort or merge
// stage.
//
// Basic usage:
//
//	p, err := logclean.New(
//	    logclean.WithSource("raw.log"),
//	    logclean.WithOutput("clean.log"),
//	    logclean.WithPartitionSize(100_000),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stats, err := p.Run(ctx)
package logclean
