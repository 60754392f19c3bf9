// Package lottery maps uniform random draws to item identifiers using fixed
// weight tables, and expands mint requests into item lists.
//
// A table holds twelve weights summing to TotalWeight; the weight at index i
// belongs to item i+1. A draw in [0, TotalWeight) selects the first item whose
// cumulative weight is strictly greater than the draw.
package lottery

import (
	"fmt"

	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// TotalWeight is the sum every table must reach and the exclusive upper bound of a draw.
const TotalWeight = 10000

// WeightTable is an ordered list of per-item weights.
type WeightTable [domain.MaxItemID]uint32

var (
	// Standard is used for regular mint requests.
	Standard = WeightTable{2300, 2300, 2300, 700, 700, 700, 300, 300, 300, 49, 49, 2}

	// Premium is used for requests paid with crystals. Items 1-3 are unreachable.
	Premium = WeightTable{0, 0, 0, 2333, 2333, 2333, 833, 833, 833, 249, 249, 4}
)

func init() {
	Standard.MustValidate()
	Premium.MustValidate()
}

// TableFor returns the premium table iff premium is set.
func TableFor(premium bool) WeightTable {
	if premium {
		return Premium
	}
	return Standard
}

// Name returns "premium" or "standard" for the two fixed tables.
func (t WeightTable) Name() string {
	switch t {
	case Premium:
		return "premium"
	case Standard:
		return "standard"
	default:
		return "custom"
	}
}

// Sum returns the total of all weights.
func (t WeightTable) Sum() uint32 {
	var sum uint32
	for _, w := range t {
		sum += w
	}
	return sum
}

// Cumulative returns the running sums of the weights.
func (t WeightTable) Cumulative() [domain.MaxItemID]uint32 {
	var out [domain.MaxItemID]uint32
	var sum uint32
	for i, w := range t {
		sum += w
		out[i] = sum
	}
	return out
}

// Validate checks that the weights sum to TotalWeight.
func (t WeightTable) Validate() error {
	if sum := t.Sum(); sum != TotalWeight {
		return fmt.Errorf("weight table sums to %d, want %d", sum, TotalWeight)
	}
	return nil
}

// MustValidate panics if the table is invalid. A bad table is a programming error.
func (t WeightTable) MustValidate() {
	if err := t.Validate(); err != nil {
		panic("lottery: " + err.Error())
	}
}

// SelectItem returns the item whose cumulative bucket contains draw.
// When no bucket does (draw out of range, or a table not summing to
// TotalWeight) it returns item 1; audited distributions rely on that fallback.
func SelectItem(draw uint32, table WeightTable) domain.ItemID {
	var sum uint32
	for i, w := range table {
		sum += w
		if draw < sum {
			return domain.ItemID(i + 1)
		}
	}
	return domain.MinItemID
}
