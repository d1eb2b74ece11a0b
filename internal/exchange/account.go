package exchange

import "github.com/xtrntr/ledgerview/internal/models"

// BuildMyFilledOrders returns the trades account took part in, as maker or
// filler, oldest first. The side is from the account's perspective: a
// filler takes the opposite side of the maker.
func (e *Exchange) BuildMyFilledOrders(filled []models.Order, account models.Address) ([]models.DecoratedOrder, []*MalformedOrderError) {
	if account == "" {
		return []models.DecoratedOrder{}, nil
	}

	var mine []models.Order
	for _, o := range filled {
		if o.User.Equal(account) || o.UserFill.Equal(account) {
			mine = append(mine, o)
		}
	}

	trades, rejected := e.decorateAll(sortByTimestamp(mine, false))
	for i := range trades {
		orderType := e.makerOrderType(trades[i].Order)
		if !trades[i].User.Equal(account) {
			orderType = opposite(orderType)
		}
		trades[i].OrderType = orderType
		trades[i].OrderTypeClass = orderTypeClass(orderType)
		trades[i].OrderSign = orderSign(orderType)
	}
	return trades, rejected
}

// BuildMyOpenOrders returns the open orders made by account, newest first
func (e *Exchange) BuildMyOpenOrders(open []models.Order, account models.Address) ([]models.DecoratedOrder, []*MalformedOrderError) {
	if account == "" {
		return []models.DecoratedOrder{}, nil
	}

	var mine []models.Order
	for _, o := range open {
		if o.User.Equal(account) {
			mine = append(mine, o)
		}
	}

	orders, rejected := e.decorateAll(mine)
	for i := range orders {
		orders[i].OrderType = e.makerOrderType(orders[i].Order)
		orders[i].OrderTypeClass = orderTypeClass(orders[i].OrderType)
	}
	sortDecoratedByTimestamp(orders, true)
	return orders, rejected
}

func opposite(t models.OrderType) models.OrderType {
	if t == models.Buy {
		return models.Sell
	}
	return models.Buy
}

func orderSign(t models.OrderType) string {
	if t == models.Buy {
		return "+"
	}
	return "-"
}
