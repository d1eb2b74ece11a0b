// Package ledger defines the contracts of the external ledger and the
// sync loop that mirrors its event streams into a view store.
package ledger

import (
	"context"
	"errors"
	"math"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/ledgerview/internal/models"
)

// Latest selects the newest block as the upper bound of a query
const Latest uint64 = math.MaxUint64

// Errors returned by Writer implementations
var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderNotOpen  = errors.New("order not open")
	ErrNotOrderOwner = errors.New("order not owned by user")
)

// Source reads the ledger's event streams
type Source interface {
	// Head returns the highest block written so far. Every block at or
	// below it is already readable.
	Head(ctx context.Context) (uint64, error)
	// QueryEvents returns the events of one kind within [fromBlock, toBlock]
	QueryEvents(ctx context.Context, kind models.EventKind, fromBlock, toBlock uint64) ([]models.Event, error)
	// Subscribe calls handler for every event from fromBlock on, then for
	// every new event until ctx is done. Delivery is at least once and may
	// be out of order.
	Subscribe(ctx context.Context, fromBlock uint64, handler func(models.Event)) error
}

// Receipt acknowledges a ledger write
type Receipt struct {
	Block   uint64 `json:"block"`
	OrderID int64  `json:"order_id"`
}

// Writer submits operations to the ledger
type Writer interface {
	SubmitOrder(ctx context.Context, user, tokenGet models.Address, amountGet decimal.Decimal, tokenGive models.Address, amountGive decimal.Decimal) (Receipt, error)
	CancelOrder(ctx context.Context, user models.Address, orderID int64) (Receipt, error)
	FillOrder(ctx context.Context, filler models.Address, orderID int64) (Receipt, error)
}
