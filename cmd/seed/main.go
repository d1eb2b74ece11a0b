package main

import (
	"context"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/ledgerview/internal/auth"
	"github.com/xtrntr/ledgerview/internal/config"
	"github.com/xtrntr/ledgerview/internal/db"
	"github.com/xtrntr/ledgerview/internal/ledger"
	"github.com/xtrntr/ledgerview/internal/models"
)

const (
	trader1 models.Address = "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1"
	trader2 models.Address = "0xffcf8fdee72ac11b5c542428b35eef5769c409f0"
	token   models.Address = "0xe78a0f7e598cc8b0bb87894b0f60dd2a88d6a8ab"
)

type seedOrder struct {
	id       int64
	maker    models.Address
	buy      bool
	tokens   string
	ether    string
	hoursAgo int
	filler   models.Address // set for trades
	cancel   bool
}

// A day of trading spread over several hourly buckets, with some orders
// left open or cancelled for the order book
var history = []seedOrder{
	{id: 1, maker: trader1, buy: true, tokens: "100", ether: "1", hoursAgo: 26, filler: trader2},
	{id: 2, maker: trader2, buy: false, tokens: "50", ether: "0.6", hoursAgo: 25, filler: trader1},
	{id: 3, maker: trader1, buy: true, tokens: "200", ether: "2.2", hoursAgo: 25, filler: trader2},
	{id: 4, maker: trader2, buy: false, tokens: "10", ether: "0.09", hoursAgo: 20, filler: trader1},
	{id: 5, maker: trader1, buy: true, tokens: "120", ether: "1.5", hoursAgo: 12, filler: trader2},
	{id: 6, maker: trader2, buy: false, tokens: "80", ether: "0.96", hoursAgo: 6, filler: trader1},
	{id: 7, maker: trader1, buy: true, tokens: "75", ether: "0.8", hoursAgo: 3, cancel: true},
	{id: 8, maker: trader2, buy: false, tokens: "40", ether: "0.52", hoursAgo: 2, cancel: true},
	{id: 9, maker: trader1, buy: true, tokens: "100", ether: "1.1", hoursAgo: 1},
	{id: 10, maker: trader1, buy: true, tokens: "60", ether: "0.63", hoursAgo: 1},
	{id: 11, maker: trader2, buy: false, tokens: "30", ether: "0.39", hoursAgo: 0},
	{id: 12, maker: trader2, buy: false, tokens: "90", ether: "1.26", hoursAgo: 0},
}

func (s seedOrder) order(now time.Time) models.Order {
	tokens := decimal.RequireFromString(s.tokens).Shift(18)
	ether := decimal.RequireFromString(s.ether).Shift(18)

	o := models.Order{
		ID:        s.id,
		User:      s.maker,
		Timestamp: now.Add(-time.Duration(s.hoursAgo) * time.Hour).Unix(),
	}
	if s.buy {
		o.TokenGet, o.AmountGet = token, tokens
		o.TokenGive, o.AmountGive = models.ZeroAddress, ether
	} else {
		o.TokenGet, o.AmountGet = models.ZeroAddress, ether
		o.TokenGive, o.AmountGive = token, tokens
	}
	return o
}

// Seed the ledger with test data
func main() {
	ctx := context.Background()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	schema, err := os.ReadFile("migrations/001_init.sql")
	if err != nil {
		logger.Fatalf("failed to read migration: %v", err)
	}
	if err := database.Migrate(ctx, string(schema)); err != nil {
		logger.Fatalf("failed to apply migration: %v", err)
	}

	// First check if we already have orders
	existing, err := database.QueryEvents(ctx, models.KindOrder, 0, ledger.Latest)
	if err != nil {
		logger.Fatalf("failed to check ledger: %v", err)
	}
	if len(existing) > 0 {
		logger.Infof("ledger already has %d orders, no need to seed", len(existing))
		return
	}

	authService := auth.NewAuthService(database, cfg.JWTSecret, cfg.TokenTTL)
	for username, account := range map[string]models.Address{"trader1": trader1, "trader2": trader2} {
		if _, err := authService.Register(ctx, username, "password123", account); err != nil {
			logger.WithError(err).WithField("username", username).Warn("failed to create user")
		}
	}

	now := time.Now()
	var trades, cancels int
	for _, s := range history {
		o := s.order(now)
		if _, err := database.ImportEvent(ctx, models.KindOrder, o); err != nil {
			logger.Fatalf("failed to import order %d: %v", s.id, err)
		}

		switch {
		case s.filler != "":
			o.UserFill = s.filler
			if _, err := database.ImportEvent(ctx, models.KindTrade, o); err != nil {
				logger.Fatalf("failed to import trade %d: %v", s.id, err)
			}
			trades++
		case s.cancel:
			if _, err := database.ImportEvent(ctx, models.KindCancel, o); err != nil {
				logger.Fatalf("failed to import cancel %d: %v", s.id, err)
			}
			cancels++
		}
	}

	logger.WithFields(logrus.Fields{
		"orders":  len(history),
		"trades":  trades,
		"cancels": cancels,
	}).Info("seeded ledger")
}
