// Package linearize computes method resolution orders for multiple
// inheritance graphs using the C3 merge.
//
// The result for a class lists the class itself followed by every ancestor
// exactly once. A class always precedes its ancestors and the left-to-right
// order in which each class declared its parents is preserved. A common
// ancestor reached through several paths ends up in one position, which is
// what makes diamond hierarchies share a single ancestor slot.
//
// The function is generic over the key type so the descriptor registry can
// linearize arena indices while tests use plain strings.
package linearize

import (
	"fmt"
	"strings"

	"github.com/wippyai/objbridge/errors"
)

// C3 returns the linearization of self given its declared parents and a
// lookup for the (already computed) linearization of each parent.
//
// It fails with errors.KindInconsistentHierarchy when no valid head can be
// chosen, or when self is reachable from one of its parents (a cycle).
func C3[K comparable](self K, parents []K, mro func(K) []K) ([]K, error) {
	seqs := make([][]K, 0, len(parents)+1)
	for _, p := range parents {
		pm := mro(p)
		if len(pm) == 0 {
			pm = []K{p}
		}
		for _, k := range pm {
			if k == self {
				return nil, errors.InconsistentHierarchy(keyString(self),
					fmt.Sprintf("cycle through parent %s", keyString(p)))
			}
		}
		seqs = append(seqs, clone(pm))
	}
	seqs = append(seqs, clone(parents))

	merged, err := merge(seqs)
	if err != nil {
		err.Class = keyString(self)
		return nil, err
	}

	result := make([]K, 0, len(merged)+1)
	result = append(result, self)
	return append(result, merged...), nil
}

// merge runs the C3 merge over the given sequences. Sequences are consumed.
func merge[K comparable](seqs [][]K) ([]K, *errors.Error) {
	var result []K

	for {
		seqs = dropEmpty(seqs)
		if len(seqs) == 0 {
			return result, nil
		}

		head, ok := pickHead(seqs)
		if !ok {
			return nil, errors.InconsistentHierarchy("", blockedDetail(seqs))
		}

		result = append(result, head)
		for i, s := range seqs {
			if len(s) > 0 && s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

// pickHead returns the first head that does not appear in the tail of any
// sequence.
func pickHead[K comparable](seqs [][]K) (K, bool) {
	for _, s := range seqs {
		candidate := s[0]
		if !inAnyTail(seqs, candidate) {
			return candidate, true
		}
	}
	var zero K
	return zero, false
}

func inAnyTail[K comparable](seqs [][]K, k K) bool {
	for _, s := range seqs {
		for _, t := range s[1:] {
			if t == k {
				return true
			}
		}
	}
	return false
}

func dropEmpty[K comparable](seqs [][]K) [][]K {
	out := seqs[:0]
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func blockedDetail[K comparable](seqs [][]K) string {
	heads := make([]string, 0, len(seqs))
	seen := make(map[K]bool, len(seqs))
	for _, s := range seqs {
		if !seen[s[0]] {
			seen[s[0]] = true
			heads = append(heads, keyString(s[0]))
		}
	}
	return "cannot create a consistent method resolution order; blocked heads: " + strings.Join(heads, ", ")
}

func clone[K comparable](s []K) []K {
	out := make([]K, len(s))
	copy(out, s)
	return out
}

// Namer is implemented by keys that want a readable name in error messages.
type Namer interface {
	Name() string
}

func keyString[K comparable](k K) string {
	if n, ok := any(k).(Namer); ok {
		return n.Name()
	}
	return fmt.Sprint(k)
}
