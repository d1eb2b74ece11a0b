package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ZeroAddress is the default sentinel denoting the network's native currency
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// Address is a hex encoded account or token address
type Address string

// Equal compares two addresses ignoring hex case
func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// User represents a registered user bound to a ledger account
type User struct {
	ID           int
	Username     string
	PasswordHash string
	Account      Address
}

// Order is one raw ledger event record. The same shape is emitted for
// created, cancelled and filled orders; UserFill is only set on trades.
type Order struct {
	ID         int64           `json:"id"`
	User       Address         `json:"user"`
	TokenGet   Address         `json:"tokenGet"`
	AmountGet  decimal.Decimal `json:"amountGet"` // smallest unit
	TokenGive  Address         `json:"tokenGive"`
	AmountGive decimal.Decimal `json:"amountGive"` // smallest unit
	Timestamp  int64           `json:"timestamp"`  // unix seconds
	UserFill   Address         `json:"userFill,omitempty"`
}

// OrderType is the side of an order from a given perspective
type OrderType string

const (
	Buy  OrderType = "buy"
	Sell OrderType = "sell"
)

// ColorTag is the display class attached to prices and sides
type ColorTag string

const (
	Green ColorTag = "success" // buy side, price up
	Red   ColorTag = "danger"  // sell side, price down
)

// PriceChange is the direction of the last price relative to the one before
type PriceChange string

const (
	PriceUp   PriceChange = "+"
	PriceDown PriceChange = "-"
)

// DecoratedOrder is an order enriched with display fields
type DecoratedOrder struct {
	Order
	EtherAmount        decimal.Decimal `json:"etherAmount"`
	TokenAmount        decimal.Decimal `json:"tokenAmount"`
	TokenPrice         decimal.Decimal `json:"tokenPrice"`
	FormattedTimestamp string          `json:"formattedTimestamp"`
	OrderType          OrderType       `json:"orderType,omitempty"`
	OrderTypeClass     ColorTag        `json:"orderTypeClass,omitempty"`
	TokenPriceClass    ColorTag        `json:"tokenPriceClass,omitempty"`
	OrderSign          string          `json:"orderSign,omitempty"`
}

// OrderBook holds the open orders split by side, each ordered price descending
type OrderBook struct {
	BuyOrders  []DecoratedOrder `json:"buyOrders"`
	SellOrders []DecoratedOrder `json:"sellOrders"`
}

// Bar is one OHLC bucket
type Bar struct {
	BucketStart int64           `json:"bucketStart"` // unix seconds
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
}

// PriceChart is the hourly price series with a last-price summary
type PriceChart struct {
	LastPrice       decimal.Decimal `json:"lastPrice"`
	LastPriceChange PriceChange     `json:"lastPriceChange"`
	Bars            []Bar           `json:"bars"`
}

// EventKind names one of the three ledger event streams
type EventKind string

const (
	KindOrder  EventKind = "Order"
	KindCancel EventKind = "Cancel"
	KindTrade  EventKind = "Trade"
)

// Event is a ledger event tagged with its stream and block
type Event struct {
	Kind  EventKind `json:"kind"`
	Block uint64    `json:"block"`
	Order Order     `json:"order"`
}
