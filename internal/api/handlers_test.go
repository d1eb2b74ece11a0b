package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/ledgerview/internal/auth"
	"github.com/xtrntr/ledgerview/internal/exchange"
	"github.com/xtrntr/ledgerview/internal/ledger"
	"github.com/xtrntr/ledgerview/internal/models"
	"github.com/xtrntr/ledgerview/internal/views"
)

const (
	alice models.Address = "0x1111111111111111111111111111111111111111"
	bob   models.Address = "0x2222222222222222222222222222222222222222"
	dapp  models.Address = "0x9999999999999999999999999999999999999999"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (m *memUsers) CreateUser(ctx context.Context, username, passwordHash string, account models.Address) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return nil, errors.New("duplicate username")
	}
	u := &models.User{ID: len(m.users) + 1, Username: username, PasswordHash: passwordHash, Account: account}
	m.users[username] = u
	return u, nil
}

func (m *memUsers) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

// fakeLedger records writes and answers with canned errors per order id
type fakeLedger struct {
	submitted []models.Order
	errs      map[int64]error
	closed    []int64
}

func (f *fakeLedger) SubmitOrder(ctx context.Context, user, tokenGet models.Address, amountGet decimal.Decimal, tokenGive models.Address, amountGive decimal.Decimal) (ledger.Receipt, error) {
	f.submitted = append(f.submitted, models.Order{User: user, TokenGet: tokenGet, AmountGet: amountGet, TokenGive: tokenGive, AmountGive: amountGive})
	return ledger.Receipt{Block: 10, OrderID: int64(len(f.submitted))}, nil
}

func (f *fakeLedger) CancelOrder(ctx context.Context, user models.Address, orderID int64) (ledger.Receipt, error) {
	return f.close(orderID)
}

func (f *fakeLedger) FillOrder(ctx context.Context, filler models.Address, orderID int64) (ledger.Receipt, error) {
	return f.close(orderID)
}

func (f *fakeLedger) close(orderID int64) (ledger.Receipt, error) {
	if err := f.errs[orderID]; err != nil {
		return ledger.Receipt{}, err
	}
	f.closed = append(f.closed, orderID)
	return ledger.Receipt{Block: 11, OrderID: orderID}, nil
}

func order(id int64, user models.Address, tokens, ether int64, ts int64) models.Order {
	return models.Order{
		ID:         id,
		User:       user,
		TokenGet:   dapp,
		AmountGet:  decimal.NewFromInt(tokens).Shift(18),
		TokenGive:  models.ZeroAddress,
		AmountGive: decimal.NewFromInt(ether).Shift(18),
		Timestamp:  ts,
	}
}

type testEnv struct {
	router *chi.Mux
	store  *views.Store
	ledger *fakeLedger
	hub    *Hub
	token  string
}

func newTestEnv(t *testing.T, l ledger.Writer) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()

	store := views.NewStore(exchange.NewExchange(), logger, 8)
	authService := auth.NewAuthService(&memUsers{users: map[string]*models.User{}}, "test-secret", time.Hour)

	_, err := authService.Register(context.Background(), "alice", "password123", alice)
	require.NoError(t, err)
	token, err := authService.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	hub := NewHub(store, logger)
	env := &testEnv{
		router: NewRouter(NewHandler(l, store, authService, logger), hub),
		store:  store,
		hub:    hub,
		token:  token,
	}
	if fl, ok := l.(*fakeLedger); ok {
		env.ledger = fl
	}
	return env
}

func (env *testEnv) loadFixture() {
	filled := order(3, bob, 10, 3, 300)
	filled.UserFill = alice
	env.store.Load(
		[]models.Order{order(1, alice, 10, 1, 100), order(2, bob, 10, 2, 200), order(3, bob, 10, 3, 300)},
		nil,
		[]models.Order{filled},
	)
}

func (env *testEnv) do(method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+env.token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestHandler_Register(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{})

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedBody   map[string]interface{}
	}{
		{
			name: "Success",
			requestBody: map[string]interface{}{
				"username": "bob",
				"password": "testpass",
				"account":  string(bob),
			},
			expectedStatus: http.StatusCreated,
			expectedBody: map[string]interface{}{
				"id":       float64(2),
				"username": "bob",
				"account":  string(bob),
			},
		},
		{
			name: "Missing Password",
			requestBody: map[string]interface{}{
				"username": "testuser",
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody: map[string]interface{}{
				"error": "Username and password required",
			},
		},
		{
			name: "Invalid Account",
			requestBody: map[string]interface{}{
				"username": "carol",
				"password": "testpass",
				"account":  "0x12",
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody: map[string]interface{}{
				"error": auth.ErrInvalidAccount.Error(),
			},
		},
		{
			name: "Duplicate Username",
			requestBody: map[string]interface{}{
				"username": "alice",
				"password": "testpass",
				"account":  string(alice),
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody: map[string]interface{}{
				"error": "Failed to register user",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/auth/register", tt.requestBody, false)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedBody, decode(t, w))
		})
	}
}

func TestHandler_Login(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{})

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectToken    bool
	}{
		{
			name: "Success",
			requestBody: map[string]interface{}{
				"username": "alice",
				"password": "password123",
			},
			expectedStatus: http.StatusOK,
			expectToken:    true,
		},
		{
			name: "Invalid Credentials",
			requestBody: map[string]interface{}{
				"username": "alice",
				"password": "wrongpass",
			},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/auth/login", tt.requestBody, false)

			assert.Equal(t, tt.expectedStatus, w.Code)
			response := decode(t, w)
			if tt.expectToken {
				assert.NotEmpty(t, response["token"])
			} else {
				assert.Contains(t, response, "error")
			}
		})
	}
}

func TestHandler_ViewsUnavailable(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{})

	for _, path := range []string{"/orderbook", "/trades", "/chart", "/price"} {
		t.Run(path, func(t *testing.T) {
			w := env.do("GET", path, nil, false)
			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Equal(t, map[string]interface{}{"error": "Ledger unavailable"}, decode(t, w))
		})
	}

	w := env.do("GET", "/me/orders", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_GetOrderBook(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{})
	env.loadFixture()

	w := env.do("GET", "/orderbook", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var book models.OrderBook
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	require.Len(t, book.BuyOrders, 2)
	assert.Empty(t, book.SellOrders)
	assert.Equal(t, int64(2), book.BuyOrders[0].ID)
	assert.Equal(t, models.Green, book.BuyOrders[0].OrderTypeClass)
}

func TestHandler_GetTradeHistoryAndPrice(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{})
	env.loadFixture()

	w := env.do("GET", "/trades", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var trades []models.DecoratedOrder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, int64(3), trades[0].ID)

	w = env.do("GET", "/price", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, "0.3", response["lastPrice"])
	assert.Equal(t, string(models.PriceUp), response["lastPriceChange"])

	w = env.do("GET", "/chart", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var chart models.PriceChart
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &chart))
	assert.Len(t, chart.Bars, 1)
}

func TestHandler_MyViews(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{})
	env.loadFixture()

	w := env.do("GET", "/me/orders", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var open []models.DecoratedOrder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &open))
	require.Len(t, open, 1)
	assert.Equal(t, int64(1), open[0].ID)

	w = env.do("GET", "/me/trades", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []models.DecoratedOrder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	// alice filled bob's buy, so she sold
	assert.Equal(t, models.Sell, mine[0].OrderType)
	assert.Equal(t, "-", mine[0].OrderSign)

	w = env.do("GET", "/me/trades", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_PlaceOrder(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{})

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedBody   map[string]interface{}
	}{
		{
			name: "Success - Buy Order",
			requestBody: map[string]interface{}{
				"token_get":   string(dapp),
				"amount_get":  "100000000000000000000",
				"token_give":  string(models.ZeroAddress),
				"amount_give": "1000000000000000000",
			},
			expectedStatus: http.StatusCreated,
			expectedBody: map[string]interface{}{
				"message":  "Order placed",
				"order_id": float64(1),
				"block":    float64(10),
			},
		},
		{
			name: "Fractional Amount",
			requestBody: map[string]interface{}{
				"token_get":   string(dapp),
				"amount_get":  "1.5",
				"token_give":  string(models.ZeroAddress),
				"amount_give": "1",
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody: map[string]interface{}{
				"error": "Amounts must be positive integers in the smallest unit",
			},
		},
		{
			name: "Zero Amount",
			requestBody: map[string]interface{}{
				"token_get":   string(dapp),
				"amount_get":  "0",
				"token_give":  string(models.ZeroAddress),
				"amount_give": "1",
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody: map[string]interface{}{
				"error": "Amounts must be positive integers in the smallest unit",
			},
		},
		{
			name: "Same Token",
			requestBody: map[string]interface{}{
				"token_get":   string(dapp),
				"amount_get":  "1",
				"token_give":  strings.ToUpper(string(dapp)),
				"amount_give": "1",
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody: map[string]interface{}{
				"error": "Tokens must differ",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/orders", tt.requestBody, true)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedBody, decode(t, w))
		})
	}

	require.Len(t, env.ledger.submitted, 1)
	assert.Equal(t, alice, env.ledger.submitted[0].User)
}

func TestHandler_CloseOrder(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{errs: map[int64]error{
		404: ledger.ErrOrderNotFound,
		403: ledger.ErrNotOrderOwner,
		409: ledger.ErrOrderNotOpen,
		500: errors.New("connection reset"),
	}})

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{name: "Cancel", method: "DELETE", path: "/orders/1", expectedStatus: http.StatusOK},
		{name: "Fill", method: "POST", path: "/orders/2/fill", expectedStatus: http.StatusOK},
		{name: "NotFound", method: "DELETE", path: "/orders/404", expectedStatus: http.StatusNotFound},
		{name: "NotOwner", method: "DELETE", path: "/orders/403", expectedStatus: http.StatusForbidden},
		{name: "NotOpen", method: "POST", path: "/orders/409/fill", expectedStatus: http.StatusConflict},
		{name: "LedgerFailure", method: "POST", path: "/orders/500/fill", expectedStatus: http.StatusInternalServerError},
		{name: "BadID", method: "DELETE", path: "/orders/abc", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, nil, true)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}

	assert.Equal(t, []int64{1, 2}, env.ledger.closed)
}

func TestHandler_NoLedger(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("DELETE", "/orders/1", nil, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do("POST", "/orders", map[string]interface{}{}, true)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_JWTAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{})
	env.loadFixture()

	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{name: "Missing", header: "", expectedStatus: http.StatusUnauthorized},
		{name: "Garbage", header: "Bearer not-a-token", expectedStatus: http.StatusUnauthorized},
		{name: "Valid", header: "Bearer " + env.token, expectedStatus: http.StatusOK},
		{name: "NoPrefix", header: env.token, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestHub_WebSocket(t *testing.T) {
	env := newTestEnv(t, &fakeLedger{})
	env.loadFixture()

	server := httptest.NewServer(env.router)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first Update
	require.NoError(t, conn.ReadJSON(&first))
	assert.Len(t, first.OrderBook.BuyOrders, 2)
	assert.Len(t, first.Trades, 1)

	_, err = env.store.Append(models.Event{Kind: models.KindOrder, Order: order(4, alice, 10, 4, 400)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.hub.Run(ctx, 10*time.Millisecond)

	var next Update
	require.NoError(t, conn.ReadJSON(&next))
	assert.Greater(t, next.Version, first.Version)
	assert.Equal(t, env.store.Version(), next.Version)
	assert.Len(t, next.OrderBook.BuyOrders, 3)
}
