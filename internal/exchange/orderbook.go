package exchange

import (
	"sort"

	"github.com/xtrntr/ledgerview/internal/models"
)

// BuildOrderBook decorates the open orders and splits them into buy and
// sell sides, each sorted by price descending with ties in input order
func (e *Exchange) BuildOrderBook(open []models.Order) (models.OrderBook, []*MalformedOrderError) {
	decorated, rejected := e.decorateAll(open)

	book := models.OrderBook{
		BuyOrders:  []models.DecoratedOrder{},
		SellOrders: []models.DecoratedOrder{},
	}
	for _, order := range decorated {
		order.OrderType = e.makerOrderType(order.Order)
		order.OrderTypeClass = orderTypeClass(order.OrderType)
		if order.OrderType == models.Buy {
			book.BuyOrders = append(book.BuyOrders, order)
		} else {
			book.SellOrders = append(book.SellOrders, order)
		}
	}

	sortByPriceDesc(book.BuyOrders)
	sortByPriceDesc(book.SellOrders)
	return book, rejected
}

func sortByPriceDesc(orders []models.DecoratedOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].TokenPrice.GreaterThan(orders[j].TokenPrice)
	})
}
