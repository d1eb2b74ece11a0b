// Package views keeps the current raw ledger snapshot and memoizes the
// views derived from it, recomputing only when the snapshot changes.
package views

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/ledgerview/internal/exchange"
	"github.com/xtrntr/ledgerview/internal/models"
)

// ErrNotLoaded is returned by every view before the first bulk load
var ErrNotLoaded = errors.New("ledger data not loaded")

// DefaultAccountCacheSize bounds the number of memoized account views
const DefaultAccountCacheSize = 256

// Snapshot is an immutable view of the three raw event collections
type Snapshot struct {
	Version         uint64
	AllOrders       []models.Order
	CancelledOrders []models.Order
	FilledOrders    []models.Order
}

// stream is one append-only event collection with its id index
type stream struct {
	orders []models.Order
	ids    map[int64]struct{}
}

func newStream(orders []models.Order) stream {
	s := stream{ids: make(map[int64]struct{}, len(orders))}
	for _, o := range orders {
		s.add(o)
	}
	return s
}

// add appends o unless its id is already present
func (s *stream) add(o models.Order) bool {
	if _, ok := s.ids[o.ID]; ok {
		return false
	}
	s.ids[o.ID] = struct{}{}
	s.orders = append(s.orders, o)
	return true
}

// memo caches one value for one snapshot version
type memo[T any] struct {
	version uint64
	valid   bool
	value   T
}

func (m *memo[T]) get(version uint64, compute func() T) T {
	if !m.valid || m.version != version {
		m.value = compute()
		m.version = version
		m.valid = true
	}
	return m.value
}

type accountKey struct {
	version uint64
	account string
	view    string
}

// Store holds the raw collections and the memoized views over them
type Store struct {
	ex  *exchange.Exchange
	log *logrus.Logger

	mu        sync.RWMutex
	loaded    bool
	version   uint64
	all       stream
	cancelled stream
	filled    stream

	memoMu   sync.Mutex
	open     memo[[]models.Order]
	book     memo[models.OrderBook]
	history  memo[[]models.DecoratedOrder]
	chart    memo[models.PriceChart]
	accounts *lru.Cache
}

// NewStore creates an empty, unloaded store
func NewStore(ex *exchange.Exchange, log *logrus.Logger, accountCacheSize int) *Store {
	if accountCacheSize <= 0 {
		accountCacheSize = DefaultAccountCacheSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		ex:        ex,
		log:       log,
		all:       newStream(nil),
		cancelled: newStream(nil),
		filled:    newStream(nil),
		accounts:  lru.New(accountCacheSize),
	}
}

// Load replaces the three collections with a bulk historical fetch.
// Duplicate ids within a collection keep their first occurrence.
func (s *Store) Load(all, cancelled, filled []models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.all = newStream(all)
	s.cancelled = newStream(cancelled)
	s.filled = newStream(filled)
	s.loaded = true
	s.version++

	s.log.WithFields(logrus.Fields{
		"version":   s.version,
		"orders":    len(s.all.orders),
		"cancelled": len(s.cancelled.orders),
		"filled":    len(s.filled.orders),
	}).Info("ledger snapshot loaded")
}

// Append adds one live event. Replays of an id already in the event's
// stream are ignored. It reports whether the snapshot changed.
func (s *Store) Append(event models.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *stream
	switch event.Kind {
	case models.KindOrder:
		target = &s.all
	case models.KindCancel:
		target = &s.cancelled
	case models.KindTrade:
		target = &s.filled
	default:
		return false, fmt.Errorf("unknown event kind %q", event.Kind)
	}

	if !target.add(event.Order) {
		s.log.WithFields(logrus.Fields{
			"kind": event.Kind,
			"id":   event.Order.ID,
		}).Debug("duplicate ledger event ignored")
		return false, nil
	}
	s.version++
	return true, nil
}

// Loaded reports whether a bulk load has happened
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Version returns the current snapshot version
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns the current collections. The slices are clipped so
// later appends never become visible through them.
func (s *Store) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return Snapshot{}, ErrNotLoaded
	}
	return Snapshot{
		Version:         s.version,
		AllOrders:       slices.Clip(s.all.orders),
		CancelledOrders: slices.Clip(s.cancelled.orders),
		FilledOrders:    slices.Clip(s.filled.orders),
	}, nil
}

// OpenOrders returns the orders neither cancelled nor filled
func (s *Store) OpenOrders() ([]models.Order, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	return s.openOrders(snap), nil
}

// openOrders must be called with memoMu held
func (s *Store) openOrders(snap Snapshot) []models.Order {
	return s.open.get(snap.Version, func() []models.Order {
		return exchange.ResolveOpen(snap.AllOrders, snap.CancelledOrders, snap.FilledOrders)
	})
}

// OrderBook returns the memoized order book
func (s *Store) OrderBook() (models.OrderBook, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return models.OrderBook{}, err
	}
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	return s.orderBook(snap), nil
}

// TradeHistory returns the memoized filled-trade history, newest first
func (s *Store) TradeHistory() ([]models.DecoratedOrder, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	return s.tradeHistory(snap), nil
}

// PriceChart returns the memoized hourly OHLC series
func (s *Store) PriceChart() (models.PriceChart, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return models.PriceChart{}, err
	}
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	return s.priceChart(snap), nil
}

// Market is the set of public views of one snapshot version
type Market struct {
	Version   uint64
	OrderBook models.OrderBook
	Trades    []models.DecoratedOrder
	Chart     models.PriceChart
}

// Market returns the order book, trade history and price chart built from
// the same snapshot
func (s *Store) Market() (Market, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return Market{}, err
	}
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	return Market{
		Version:   snap.Version,
		OrderBook: s.orderBook(snap),
		Trades:    s.tradeHistory(snap),
		Chart:     s.priceChart(snap),
	}, nil
}

// orderBook, tradeHistory and priceChart must be called with memoMu held

func (s *Store) orderBook(snap Snapshot) models.OrderBook {
	return s.book.get(snap.Version, func() models.OrderBook {
		book, rejected := s.ex.BuildOrderBook(s.openOrders(snap))
		s.logRejected("order book", snap.Version, rejected)
		return book
	})
}

func (s *Store) tradeHistory(snap Snapshot) []models.DecoratedOrder {
	return s.history.get(snap.Version, func() []models.DecoratedOrder {
		trades, rejected := s.ex.BuildTradeHistory(snap.FilledOrders)
		s.logRejected("trade history", snap.Version, rejected)
		return trades
	})
}

func (s *Store) priceChart(snap Snapshot) models.PriceChart {
	return s.chart.get(snap.Version, func() models.PriceChart {
		chart, rejected := s.ex.BuildPriceChart(snap.FilledOrders)
		s.logRejected("price chart", snap.Version, rejected)
		return chart
	})
}

// MyFilledOrders returns the trades account took part in
func (s *Store) MyFilledOrders(account models.Address) ([]models.DecoratedOrder, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.accountView(snap, account, "filled", func() []models.DecoratedOrder {
		trades, rejected := s.ex.BuildMyFilledOrders(snap.FilledOrders, account)
		s.logRejected("my trades", snap.Version, rejected)
		return trades
	}), nil
}

// MyOpenOrders returns the open orders made by account
func (s *Store) MyOpenOrders(account models.Address) ([]models.DecoratedOrder, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.accountView(snap, account, "open", func() []models.DecoratedOrder {
		orders, rejected := s.ex.BuildMyOpenOrders(s.openOrders(snap), account)
		s.logRejected("my open orders", snap.Version, rejected)
		return orders
	}), nil
}

func (s *Store) accountView(snap Snapshot, account models.Address, view string, compute func() []models.DecoratedOrder) []models.DecoratedOrder {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()

	key := accountKey{version: snap.Version, account: normalize(account), view: view}
	if cached, ok := s.accounts.Get(key); ok {
		return cached.([]models.DecoratedOrder)
	}
	value := compute()
	s.accounts.Add(key, value)
	return value
}

func (s *Store) logRejected(view string, version uint64, rejected []*exchange.MalformedOrderError) {
	for _, r := range rejected {
		s.log.WithFields(logrus.Fields{
			"view":    view,
			"version": version,
			"id":      r.ID,
		}).WithError(r).Warn("order excluded from view")
	}
}
