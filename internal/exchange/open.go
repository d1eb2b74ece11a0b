package exchange

import "github.com/xtrntr/ledgerview/internal/models"

// ResolveOpen returns the orders of all whose id appears in neither
// cancelled nor filled. Callers impose their own ordering.
func ResolveOpen(all, cancelled, filled []models.Order) []models.Order {
	closed := make(map[int64]struct{}, len(cancelled)+len(filled))
	for _, o := range cancelled {
		closed[o.ID] = struct{}{}
	}
	for _, o := range filled {
		closed[o.ID] = struct{}{}
	}

	open := make([]models.Order, 0, len(all))
	for _, o := range all {
		if _, ok := closed[o.ID]; !ok {
			open = append(open, o)
		}
	}
	return open
}
