package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/ledgerview/internal/ledger"
	"github.com/xtrntr/ledgerview/internal/models"
)

// NotifyChannel carries the block number of every new ledger event
const NotifyChannel = "ledger_events"

// appendLockKey serializes appends so blocks commit in ascending order
const appendLockKey = 0x6c656467

var (
	_ ledger.Source = (*DB)(nil)
	_ ledger.Writer = (*DB)(nil)
)

const eventColumns = "block, kind, order_id, user_addr, token_get, amount_get::text, token_give, amount_give::text, COALESCE(user_fill, ''), ts"

func scanEvent(row pgx.Row) (models.Event, error) {
	var (
		e                     models.Event
		block                 int64
		kind                  string
		user, tokenGet        string
		tokenGive, userFill   string
		amountGet, amountGive string
	)
	err := row.Scan(&block, &kind, &e.Order.ID, &user, &tokenGet, &amountGet, &tokenGive, &amountGive, &userFill, &e.Order.Timestamp)
	if err != nil {
		return models.Event{}, err
	}
	e.Block = uint64(block)
	e.Kind = models.EventKind(kind)
	e.Order.User = models.Address(user)
	e.Order.TokenGet = models.Address(tokenGet)
	e.Order.TokenGive = models.Address(tokenGive)
	e.Order.UserFill = models.Address(userFill)
	if e.Order.AmountGet, err = decimal.NewFromString(amountGet); err != nil {
		return models.Event{}, fmt.Errorf("failed to parse amount_get of block %d: %w", e.Block, err)
	}
	if e.Order.AmountGive, err = decimal.NewFromString(amountGive); err != nil {
		return models.Event{}, fmt.Errorf("failed to parse amount_give of block %d: %w", e.Block, err)
	}
	return e, nil
}

// blockParam maps a block bound onto the bigint column range
func blockParam(block uint64) int64 {
	if block > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(block)
}

// QueryEvents retrieves the events of one kind between two blocks, inclusive
func (db *DB) QueryEvents(ctx context.Context, kind models.EventKind, fromBlock, toBlock uint64) ([]models.Event, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+eventColumns+" FROM ledger_events WHERE kind = $1 AND block BETWEEN $2 AND $3 ORDER BY block",
		string(kind), blockParam(fromBlock), blockParam(toBlock))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// Head returns the highest committed block, 0 for an empty ledger. Appends
// commit in block order, so every lower block is committed as well.
func (db *DB) Head(ctx context.Context) (uint64, error) {
	var head int64
	if err := db.Pool.QueryRow(ctx, "SELECT COALESCE(MAX(block), 0) FROM ledger_events").Scan(&head); err != nil {
		return 0, fmt.Errorf("failed to read head: %w", err)
	}
	return uint64(head), nil
}

// GetEvent retrieves the event written at block
func (db *DB) GetEvent(ctx context.Context, block uint64) (models.Event, error) {
	e, err := scanEvent(db.Pool.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM ledger_events WHERE block = $1", blockParam(block)))
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to get event %d: %w", block, err)
	}
	return e, nil
}

// Subscribe replays the events from fromBlock on and then follows new ones
// through LISTEN/NOTIFY until ctx is done
func (db *DB) Subscribe(ctx context.Context, fromBlock uint64, handler func(models.Event)) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// LISTEN is active, so anything written from here on is notified
	for _, kind := range []models.EventKind{models.KindOrder, models.KindCancel, models.KindTrade} {
		events, err := db.QueryEvents(ctx, kind, fromBlock, ledger.Latest)
		if err != nil {
			return err
		}
		for _, e := range events {
			handler(e)
		}
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to wait for notification: %w", err)
		}
		block, err := strconv.ParseUint(n.Payload, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid notification payload %q: %w", n.Payload, err)
		}
		e, err := db.GetEvent(ctx, block)
		if err != nil {
			return err
		}
		handler(e)
	}
}

func insertEvent(ctx context.Context, tx pgx.Tx, kind models.EventKind, o models.Order) (ledger.Receipt, error) {
	var (
		r        ledger.Receipt
		block    int64
		userFill *string
	)
	if o.UserFill != "" {
		fill := strings.ToLower(string(o.UserFill))
		userFill = &fill
	}

	// released at commit
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(appendLockKey)); err != nil {
		return r, fmt.Errorf("failed to lock ledger: %w", err)
	}

	err := tx.QueryRow(ctx,
		"INSERT INTO ledger_events (kind, order_id, user_addr, token_get, amount_get, token_give, amount_give, user_fill, ts) "+
			"VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7::text::numeric, $8, $9) RETURNING block",
		string(kind), o.ID, strings.ToLower(string(o.User)),
		strings.ToLower(string(o.TokenGet)), o.AmountGet.String(),
		strings.ToLower(string(o.TokenGive)), o.AmountGive.String(),
		userFill, o.Timestamp).Scan(&block)
	if err != nil {
		return r, fmt.Errorf("failed to insert %s event: %w", kind, err)
	}

	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, strconv.FormatInt(block, 10)); err != nil {
		return r, fmt.Errorf("failed to notify: %w", err)
	}

	r.Block = uint64(block)
	r.OrderID = o.ID
	return r, nil
}

// ImportEvent appends an event exactly as given. It bypasses the open-order
// checks and is meant for loading history recorded elsewhere.
func (db *DB) ImportEvent(ctx context.Context, kind models.EventKind, order models.Order) (ledger.Receipt, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if kind == models.KindOrder {
		if _, err := tx.Exec(ctx, "SELECT setval('order_ids', GREATEST($1, (SELECT last_value FROM order_ids)))", order.ID); err != nil {
			return ledger.Receipt{}, fmt.Errorf("failed to advance order ids: %w", err)
		}
	}
	r, err := insertEvent(ctx, tx, kind, order)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return r, nil
}

// SubmitOrder records a new order under the next order id
func (db *DB) SubmitOrder(ctx context.Context, user, tokenGet models.Address, amountGet decimal.Decimal, tokenGive models.Address, amountGive decimal.Decimal) (ledger.Receipt, error) {
	if amountGet.IsNegative() || amountGive.IsNegative() {
		return ledger.Receipt{}, fmt.Errorf("amounts must not be negative")
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order := models.Order{
		User:       user,
		TokenGet:   tokenGet,
		AmountGet:  amountGet,
		TokenGive:  tokenGive,
		AmountGive: amountGive,
		Timestamp:  time.Now().Unix(),
	}
	if err := tx.QueryRow(ctx, "SELECT nextval('order_ids')").Scan(&order.ID); err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to allocate order id: %w", err)
	}

	r, err := insertEvent(ctx, tx, models.KindOrder, order)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return r, nil
}

// lockOpenOrder locks the order's creation event and checks that it has
// been neither cancelled nor filled
func lockOpenOrder(ctx context.Context, tx pgx.Tx, orderID int64) (models.Order, error) {
	e, err := scanEvent(tx.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM ledger_events WHERE kind = 'Order' AND order_id = $1 FOR UPDATE",
		orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, ledger.ErrOrderNotFound
		}
		return models.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	var closed bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM ledger_events WHERE kind IN ('Cancel', 'Trade') AND order_id = $1)",
		orderID).Scan(&closed)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to check order status: %w", err)
	}
	if closed {
		return models.Order{}, ledger.ErrOrderNotOpen
	}
	return e.Order, nil
}

// CancelOrder cancels an open order if it belongs to the user
func (db *DB) CancelOrder(ctx context.Context, user models.Address, orderID int64) (ledger.Receipt, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := lockOpenOrder(ctx, tx, orderID)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if !order.User.Equal(user) {
		return ledger.Receipt{}, ledger.ErrNotOrderOwner
	}

	order.Timestamp = time.Now().Unix()
	r, err := insertEvent(ctx, tx, models.KindCancel, order)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return r, nil
}

// FillOrder executes an open order on behalf of filler
func (db *DB) FillOrder(ctx context.Context, filler models.Address, orderID int64) (ledger.Receipt, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := lockOpenOrder(ctx, tx, orderID)
	if err != nil {
		return ledger.Receipt{}, err
	}

	order.UserFill = filler
	order.Timestamp = time.Now().Unix()
	r, err := insertEvent(ctx, tx, models.KindTrade, order)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.Receipt{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return r, nil
}
