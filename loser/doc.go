// Package loser implements a tournament tree (also known as a loser tree) for
// merging several sorted sequences into one. It is based on the work by
// Bryan Boreham (https://github.com/bboreham/go-loser).
//
// The merge stage uses it for partitions whose key ranges touch: when a run
// of equal keys is split across partitions, their records must be
// interleaved by value rather than concatenated.
//
// Basic usage:
//
//	tree := loser.New(
//	    []loser.Sequence[int]{seq1, seq2, seq3},
//	    math.MaxInt, // greater than every value
//	    cmp.Compare[int],
//	)
//	for v := range tree.All() {
//	    fmt.Println(v)
//	}
//
// Implementation details: the tree is laid out in an array where the
// children of node N are 2N and 2N+1. M leaves live in positions M..2M-1,
// internal nodes in 1..M-1, and node 0 holds the current winner. Each
// internal node keeps the loser of the game played there, so replacing the
// winner costs one game per level: O(log M) comparisons per element.
package loser
