package exchange

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/ledgerview/internal/models"
)

// pricePrecision is the number of decimal places kept in TokenPrice
const pricePrecision = 4

// DecorateOrder enriches a raw order with scaled amounts, price and
// formatted time. Orders that would yield no finite price are rejected
// with a *MalformedOrderError.
func (e *Exchange) DecorateOrder(order models.Order) (models.DecoratedOrder, error) {
	if err := validateOrder(order); err != nil {
		return models.DecoratedOrder{}, err
	}

	var etherAmount, tokenAmount decimal.Decimal
	if e.isCurrency(order.TokenGive) {
		etherAmount = order.AmountGive
		tokenAmount = order.AmountGet
	} else {
		etherAmount = order.AmountGet
		tokenAmount = order.AmountGive
	}
	if tokenAmount.IsZero() {
		return models.DecoratedOrder{}, malformed(order.ID, "token amount is zero")
	}

	etherAmount = etherAmount.Shift(-e.Decimals)
	tokenAmount = tokenAmount.Shift(-e.Decimals)

	return models.DecoratedOrder{
		Order:              order,
		EtherAmount:        etherAmount,
		TokenAmount:        tokenAmount,
		TokenPrice:         etherAmount.Div(tokenAmount).Round(pricePrecision),
		FormattedTimestamp: time.Unix(order.Timestamp, 0).In(e.Location).Format(e.TimeLayout),
	}, nil
}

func validateOrder(order models.Order) error {
	switch {
	case order.ID < 0:
		return malformed(order.ID, "negative id")
	case order.User == "":
		return malformed(order.ID, "missing user")
	case order.TokenGet == "" || order.TokenGive == "":
		return malformed(order.ID, "missing token address")
	case order.AmountGet.IsNegative() || order.AmountGive.IsNegative():
		return malformed(order.ID, "negative amount")
	case order.Timestamp < 0:
		return malformed(order.ID, "negative timestamp")
	}
	return nil
}

// decorateAll decorates orders in input order, dropping and collecting the
// malformed ones
func (e *Exchange) decorateAll(orders []models.Order) ([]models.DecoratedOrder, []*MalformedOrderError) {
	decorated := make([]models.DecoratedOrder, 0, len(orders))
	var rejected []*MalformedOrderError
	for _, order := range orders {
		d, err := e.DecorateOrder(order)
		if err != nil {
			var merr *MalformedOrderError
			if !errors.As(err, &merr) {
				merr = malformed(order.ID, "%v", err)
			}
			rejected = append(rejected, merr)
			continue
		}
		decorated = append(decorated, d)
	}
	return decorated, rejected
}
