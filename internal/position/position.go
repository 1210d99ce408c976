// Package position implements the fractional ordering keys used to sort a
// user's tasks and categories.
//
// Every orderable row carries a float64 position; ascending position is the
// display order. Inserting between two neighbors takes their midpoint, so a
// move touches exactly one row. Midpoints halve the available gap, so after
// enough inserts between the same neighbors the gap drops below MinGap and
// the whole collection must be rebalanced back to even spacing.
package position

import (
	"errors"
	"math"
)

const (
	// Gap is the base spacing: the first entity in an empty collection
	// lands at Gap, appends advance by Gap, and a rebalance spreads the
	// collection at Gap intervals. Deployment-wide constant, not
	// configurable.
	Gap = 1000.0

	// MinGap is the smallest neighbor gap a midpoint insert is allowed
	// into. 1.0 is far above float64 precision on purpose: it keeps
	// positions readable and makes rebalances rare but cheap.
	MinGap = 1.0
)

// ErrNeedsRebalance reports that the gap between the requested neighbors is
// exhausted. It is a recovery signal, not a failure: the caller rebalances
// the collection and allocates again.
var ErrNeedsRebalance = errors.New("position gap exhausted, rebalance required")

// Allocate computes a position sorting strictly between before and after.
// Nil means no neighbor on that side:
//
//	nil, nil     -> Gap (first entity in an empty collection)
//	nil, after   -> after - Gap/2 (insert at head)
//	before, nil  -> before + Gap/2 (insert at tail)
//	before, after -> midpoint, or ErrNeedsRebalance when |after-before| < MinGap
//
// Pure computation; positions may go negative on repeated head inserts,
// which is fine since the column is signed.
func Allocate(before, after *float64) (float64, error) {
	switch {
	case before == nil && after == nil:
		return Gap, nil
	case before == nil:
		return *after - Gap/2, nil
	case after == nil:
		return *before + Gap/2, nil
	}
	if math.Abs(*after-*before) < MinGap {
		return 0, ErrNeedsRebalance
	}
	return (*before + *after) / 2, nil
}

// RebalanceStage returns throwaway parking positions for a collection about
// to be rebalanced. A distinct-position index checks every UPDATE on its
// own, so writing final positions directly collides with a sibling that
// still holds its old key (row one taking 2000 while row three sits there).
// Parking every row strictly below the board, and below zero so below every
// value Rebalance hands out, makes both passes conflict-free.
func RebalanceStage(minPos float64, n int) []float64 {
	base := math.Min(minPos, 0) - Gap
	out := make([]float64, n)
	for i := range out {
		out[i] = base - float64(i+1)*Gap
	}
	return out
}

// Rebalance returns fresh evenly spaced positions for a collection of n
// entities: Gap, 2*Gap, ..., n*Gap. The caller applies them to the
// collection sorted ascending by current position, preserving relative
// order, inside the same transaction as the move that triggered it.
func Rebalance(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i+1) * Gap
	}
	return out
}
