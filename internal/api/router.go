package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// NewRouter wires the handlers. hub may be nil to disable /ws.
func NewRouter(h *Handler, hub *Hub) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if hub != nil {
		r.Get("/ws", hub.HandleWebSocket)
	}

	// Public endpoints
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/orderbook", h.GetOrderBook)
	r.Get("/trades", h.GetTradeHistory)
	r.Get("/chart", h.GetPriceChart)
	r.Get("/price", h.GetPriceSummary)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/orders", h.PlaceOrder)
		r.Delete("/orders/{id}", h.CancelOrder)
		r.Post("/orders/{id}/fill", h.FillOrder)
		r.Get("/me/orders", h.GetMyOpenOrders)
		r.Get("/me/trades", h.GetMyTrades)
	})

	return r
}
