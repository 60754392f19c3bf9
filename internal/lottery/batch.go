package lottery

import (
	"github.com/vietddude/mint-oracle/internal/core/domain"
)

// Batcher expands a mint request into its item list.
type Batcher struct {
	drawer Drawer
}

// NewBatcher creates a batcher drawing from d.
func NewBatcher(d Drawer) *Batcher {
	if d == nil {
		d = NewDrawer()
	}
	return &Batcher{drawer: d}
}

// BuildItemList draws one item per unit of req.Quantity, in draw order.
// Duplicates are expected. A zero quantity yields an empty list.
func (b *Batcher) BuildItemList(req domain.MintRequest) []domain.ItemID {
	table := TableFor(req.Premium)
	items := make([]domain.ItemID, 0, req.Quantity)
	for i := uint64(0); i < req.Quantity; i++ {
		items = append(items, SelectItem(b.drawer.Draw(), table))
	}
	return items
}
