package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/ledgerview/internal/models"
	"github.com/xtrntr/ledgerview/internal/views"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Update is the payload pushed to websocket clients
type Update struct {
	Version   uint64                  `json:"version"`
	OrderBook models.OrderBook        `json:"orderBook"`
	Trades    []models.DecoratedOrder `json:"trades"`
	Chart     models.PriceChart       `json:"chart"`
}

// Hub pushes the public views to websocket clients whenever they change
type Hub struct {
	store *views.Store
	log   *logrus.Logger

	mu      sync.RWMutex
	clients map[*wsClient]bool
}

// NewHub creates a hub over store
func NewHub(store *views.Store, log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{store: store, log: log, clients: make(map[*wsClient]bool)}
}

func (hub *Hub) payload() ([]byte, bool) {
	market, err := hub.store.Market()
	if err != nil {
		return nil, false
	}

	data, err := json.Marshal(Update{
		Version:   market.Version,
		OrderBook: market.OrderBook,
		Trades:    market.Trades,
		Chart:     market.Chart,
	})
	if err != nil {
		hub.log.WithError(err).Error("failed to marshal update")
		return nil, false
	}
	return data, true
}

// Broadcast sends the current views to every client, dropping the ones
// that fail
func (hub *Hub) Broadcast() {
	data, ok := hub.payload()
	if !ok {
		return
	}

	hub.mu.RLock()
	var failed []*wsClient
	for client := range hub.clients {
		if err := client.send(data); err != nil {
			hub.log.WithError(err).Debug("failed to send update")
			failed = append(failed, client)
		}
	}
	hub.mu.RUnlock()

	for _, client := range failed {
		hub.remove(client)
	}
}

func (hub *Hub) remove(client *wsClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.clients[client] {
		delete(hub.clients, client)
		client.conn.Close()
	}
}

// Run broadcasts on every tick where the store version has moved
func (hub *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if v := hub.store.Version(); v != last {
				last = v
				hub.Broadcast()
			}
		}
	}
}

// HandleWebSocket registers a client and sends it the current views
func (hub *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := &wsClient{conn: conn}
	hub.mu.Lock()
	hub.clients[client] = true
	hub.mu.Unlock()

	if data, ok := hub.payload(); ok {
		if err := client.send(data); err != nil {
			hub.remove(client)
			return
		}
	}

	// Keep connection alive and handle disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			hub.remove(client)
			return
		}
	}
}
