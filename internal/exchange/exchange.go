package exchange

import (
	"sort"
	"time"

	"github.com/xtrntr/ledgerview/internal/models"
)

// DefaultTimeLayout renders timestamps like "3:04:05 pm 1/2"
const DefaultTimeLayout = "3:04:05 pm 1/2"

// DefaultDecimals is the fixed decimal base of ledger amounts (10^18)
const DefaultDecimals = 18

// Exchange derives the display views from raw ledger event collections.
// It holds configuration only; every builder is a pure function of its
// arguments and never mutates them.
type Exchange struct {
	Sentinel   models.Address
	Decimals   int32
	Location   *time.Location
	TimeLayout string
}

// Option configures an Exchange
type Option func(*Exchange)

// WithSentinel sets the address denoting the native currency
func WithSentinel(addr models.Address) Option {
	return func(e *Exchange) { e.Sentinel = addr }
}

// WithDecimals sets the decimal base amounts are scaled by
func WithDecimals(decimals int32) Option {
	return func(e *Exchange) { e.Decimals = decimals }
}

// WithLocation sets the zone used for formatting and chart buckets
func WithLocation(loc *time.Location) Option {
	return func(e *Exchange) { e.Location = loc }
}

// WithTimeLayout sets the layout of FormattedTimestamp
func WithTimeLayout(layout string) Option {
	return func(e *Exchange) { e.TimeLayout = layout }
}

// NewExchange creates a new exchange
func NewExchange(opts ...Option) *Exchange {
	e := &Exchange{
		Sentinel:   models.ZeroAddress,
		Decimals:   DefaultDecimals,
		Location:   time.UTC,
		TimeLayout: DefaultTimeLayout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Location == nil {
		e.Location = time.UTC
	}
	return e
}

// isCurrency reports whether token is the native currency sentinel
func (e *Exchange) isCurrency(token models.Address) bool {
	return token.Equal(e.Sentinel)
}

// makerOrderType returns the side from the maker's perspective:
// giving currency means buying tokens
func (e *Exchange) makerOrderType(order models.Order) models.OrderType {
	if e.isCurrency(order.TokenGive) {
		return models.Buy
	}
	return models.Sell
}

func orderTypeClass(t models.OrderType) models.ColorTag {
	if t == models.Buy {
		return models.Green
	}
	return models.Red
}

// sortByTimestamp returns a sorted copy; equal timestamps keep input order
func sortByTimestamp(orders []models.Order, descending bool) []models.Order {
	sorted := make([]models.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].Timestamp > sorted[j].Timestamp
		}
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return sorted
}

func sortDecoratedByTimestamp(orders []models.DecoratedOrder, descending bool) {
	sort.SliceStable(orders, func(i, j int) bool {
		if descending {
			return orders[i].Timestamp > orders[j].Timestamp
		}
		return orders[i].Timestamp < orders[j].Timestamp
	})
}
