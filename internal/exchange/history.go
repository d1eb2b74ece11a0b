package exchange

import "github.com/xtrntr/ledgerview/internal/models"

// BuildTradeHistory decorates every filled order with its price trend and
// returns them newest first. Trends are computed oldest first so each trade
// is compared with the one that really preceded it.
func (e *Exchange) BuildTradeHistory(filled []models.Order) ([]models.DecoratedOrder, []*MalformedOrderError) {
	trades, rejected := e.decorateAll(sortByTimestamp(filled, false))
	classifyTrends(trades)
	sortDecoratedByTimestamp(trades, true)
	return trades, rejected
}
