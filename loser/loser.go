package loser

import (
	"iter"
)

// Sequence is anything that can be iterated in ascending order.
type Sequence[E any] interface {
	All() iter.Seq[E]
}

// SeqFunc adapts an iter.Seq to a Sequence.
type SeqFunc[E any] iter.Seq[E]

func (f SeqFunc[E]) All() iter.Seq[E] { return iter.Seq[E](f) }

// Tree merges sequences with a tournament of losers. Internal node n has
// children 2n and 2n+1; leaf i sits at position k+i for k sequences.
type Tree[E any] struct {
	sentinel  E
	compare   func(E, E) int
	sequences []Sequence[E]

	heads []E                // current element of each leaf
	done  []bool             // leaf is exhausted
	pulls []func() (E, bool) // set while All runs
	// losers[n] is the leaf that lost the game at internal node n.
	// losers[0] is the overall winner.
	losers []int
}

// New builds a tree over sequences. sentinel must compare greater than every
// element of every sequence; exhausted leaves hold it.
func New[E any](sequences []Sequence[E], sentinel E, compare func(E, E) int) *Tree[E] {
	k := len(sequences)
	return &Tree[E]{
		sentinel:  sentinel,
		compare:   compare,
		sequences: sequences,
		heads:     make([]E, k),
		done:      make([]bool, k),
		pulls:     make([]func() (E, bool), k),
		losers:    make([]int, k),
	}
}

// Len returns the number of merged sequences.
func (t *Tree[E]) Len() int {
	return len(t.sequences)
}

// All returns the merged sequence. It may be iterated once.
func (t *Tree[E]) All() iter.Seq[E] {
	return func(yield func(E) bool) {
		if len(t.sequences) == 0 {
			return
		}
		for i, s := range t.sequences {
			next, stop := iter.Pull(s.All())
			//nolint:gocritic // stop runs when the merge returns.
			defer stop()
			t.pulls[i] = next
			t.advance(i)
		}

		t.losers[0] = t.play(1)
		for {
			w := t.losers[0]
			if t.done[w] || !yield(t.heads[w]) {
				return
			}
			t.advance(w)
			t.replay(w)
		}
	}
}

// advance pulls the next element of leaf i.
func (t *Tree[E]) advance(i int) {
	if v, ok := t.pulls[i](); ok {
		t.heads[i] = v
		return
	}
	t.heads[i] = t.sentinel
	t.done[i] = true
}

// beats reports whether leaf a wins against leaf b. Ties go to b.
func (t *Tree[E]) beats(a, b int) bool {
	switch {
	case t.done[a]:
		return false
	case t.done[b]:
		return true
	}
	return t.compare(t.heads[a], t.heads[b]) < 0
}

// play runs the games below position pos and returns the winning leaf,
// recording the loser at every internal node.
func (t *Tree[E]) play(pos int) int {
	k := len(t.sequences)
	if pos >= k {
		return pos - k
	}
	left, right := t.play(2*pos), t.play(2*pos+1)
	if t.beats(right, left) {
		t.losers[pos] = left
		return right
	}
	t.losers[pos] = right
	return left
}

// replay walks from leaf up to the root after the leaf's head changed.
func (t *Tree[E]) replay(leaf int) {
	winner := leaf
	for pos := (leaf + len(t.sequences)) / 2; pos > 0; pos /= 2 {
		if t.beats(t.losers[pos], winner) {
			t.losers[pos], winner = winner, t.losers[pos]
		}
	}
	t.losers[0] = winner
}
