package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/ledgerview/internal/auth"
	"github.com/xtrntr/ledgerview/internal/ledger"
	"github.com/xtrntr/ledgerview/internal/models"
	"github.com/xtrntr/ledgerview/internal/views"
)

type contextKey string

const accountKey contextKey = "account"

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Ledger      ledger.Writer // nil when no ledger is available
	Views       *views.Store
	AuthService *auth.AuthService
	Log         *logrus.Logger
}

// NewHandler creates a new handler
func NewHandler(l ledger.Writer, store *views.Store, authService *auth.AuthService, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Ledger: l, Views: store, AuthService: authService, Log: log}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string         `json:"username"`
		Password string         `json:"password"`
		Account  models.Address `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password, req.Account)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidAccount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.Log.WithError(err).WithField("username", req.Username).Warn("registration failed")
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"account":  user.Account,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens and puts the account in the context
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		account, err := h.AuthService.GetAccountFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), accountKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountFrom(r *http.Request) (models.Address, bool) {
	account, ok := r.Context().Value(accountKey).(models.Address)
	return account, ok && account != ""
}

// writeView answers with a derived view or the unavailable state
func (h *Handler) writeView(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		if errors.Is(err, views.ErrNotLoaded) {
			writeError(w, http.StatusServiceUnavailable, "Ledger unavailable")
			return
		}
		h.Log.WithError(err).Error("failed to build view")
		writeError(w, http.StatusInternalServerError, "Failed to build view")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetOrderBook returns the open buy and sell orders
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.Views.OrderBook()
	h.writeView(w, book, err)
}

// GetTradeHistory returns every filled order, newest first
func (h *Handler) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	trades, err := h.Views.TradeHistory()
	h.writeView(w, trades, err)
}

// GetPriceChart returns the hourly OHLC series
func (h *Handler) GetPriceChart(w http.ResponseWriter, r *http.Request) {
	chart, err := h.Views.PriceChart()
	h.writeView(w, chart, err)
}

// GetPriceSummary returns the last price and its direction
func (h *Handler) GetPriceSummary(w http.ResponseWriter, r *http.Request) {
	chart, err := h.Views.PriceChart()
	h.writeView(w, map[string]interface{}{
		"lastPrice":       chart.LastPrice,
		"lastPriceChange": chart.LastPriceChange,
	}, err)
}

// GetMyOpenOrders returns the caller's open orders
func (h *Handler) GetMyOpenOrders(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	orders, err := h.Views.MyOpenOrders(account)
	h.writeView(w, orders, err)
}

// GetMyTrades returns the trades the caller made or filled
func (h *Handler) GetMyTrades(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	trades, err := h.Views.MyFilledOrders(account)
	h.writeView(w, trades, err)
}

// PlaceOrder submits a new order to the ledger
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if h.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "Ledger unavailable")
		return
	}

	var req struct {
		TokenGet   models.Address  `json:"token_get"`
		AmountGet  decimal.Decimal `json:"amount_get"`
		TokenGive  models.Address  `json:"token_give"`
		AmountGive decimal.Decimal `json:"amount_give"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validate input
	if req.TokenGet == "" || req.TokenGive == "" {
		writeError(w, http.StatusBadRequest, "Token addresses required")
		return
	}
	if req.TokenGet.Equal(req.TokenGive) {
		writeError(w, http.StatusBadRequest, "Tokens must differ")
		return
	}
	if !isPositiveInteger(req.AmountGet) || !isPositiveInteger(req.AmountGive) {
		writeError(w, http.StatusBadRequest, "Amounts must be positive integers in the smallest unit")
		return
	}

	receipt, err := h.Ledger.SubmitOrder(r.Context(), account, req.TokenGet, req.AmountGet, req.TokenGive, req.AmountGive)
	if err != nil {
		h.Log.WithError(err).WithField("account", account).Error("failed to submit order")
		writeError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Order placed",
		"order_id": receipt.OrderID,
		"block":    receipt.Block,
	})
}

func isPositiveInteger(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Truncate(0))
}

// CancelOrder cancels one of the caller's open orders
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.closeOrder(w, r, "Order canceled", h.cancel)
}

// FillOrder fills an open order on behalf of the caller
func (h *Handler) FillOrder(w http.ResponseWriter, r *http.Request) {
	h.closeOrder(w, r, "Order filled", h.fill)
}

func (h *Handler) cancel(ctx context.Context, account models.Address, id int64) (ledger.Receipt, error) {
	return h.Ledger.CancelOrder(ctx, account, id)
}

func (h *Handler) fill(ctx context.Context, account models.Address, id int64) (ledger.Receipt, error) {
	return h.Ledger.FillOrder(ctx, account, id)
}

type closeFunc func(ctx context.Context, account models.Address, id int64) (ledger.Receipt, error)

func (h *Handler) closeOrder(w http.ResponseWriter, r *http.Request, message string, op closeFunc) {
	account, ok := accountFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if h.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "Ledger unavailable")
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	receipt, err := op(r.Context(), account, orderID)
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrNotOrderOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrOrderNotOpen):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.Log.WithError(err).WithFields(logrus.Fields{
			"account":  account,
			"order_id": orderID,
		}).Error("ledger operation failed")
		writeError(w, http.StatusInternalServerError, "Ledger operation failed")
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":  message,
			"order_id": receipt.OrderID,
			"block":    receipt.Block,
		})
	}
}
