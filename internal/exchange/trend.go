package exchange

import "github.com/xtrntr/ledgerview/internal/models"

// ClassifyTrend tags current relative to the trade immediately before it.
// The first trade of a series is passed as its own predecessor and is up.
func ClassifyTrend(current, previous models.DecoratedOrder) models.ColorTag {
	if previous.ID == current.ID {
		return models.Green
	}
	if previous.TokenPrice.LessThanOrEqual(current.TokenPrice) {
		return models.Green
	}
	return models.Red
}

// classifyTrends sets TokenPriceClass along a slice already in ascending
// timestamp order
func classifyTrends(trades []models.DecoratedOrder) {
	if len(trades) == 0 {
		return
	}
	previous := trades[0]
	for i := range trades {
		trades[i].TokenPriceClass = ClassifyTrend(trades[i], previous)
		previous = trades[i]
	}
}
