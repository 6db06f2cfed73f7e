// Package http exposes the ordering session over JSON.
package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type OrderingHandler struct {
	sessions SessionProvider
	validate *validator.Validate
}

func NewOrderingHandler(sessions SessionProvider) *OrderingHandler {
	return &OrderingHandler{
		sessions: sessions,
		validate: validator.New(),
	}
}

func (h *OrderingHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(withSession(h.sessions))

		r.Get("/cart", h.handleGetCart)
		r.Post("/cart/items", h.handleAddItem)
		r.Delete("/cart/items/{lineID}", h.handleRemoveItem)
		r.Post("/cart/coupon", h.handleApplyCoupon)
		r.Delete("/cart/coupon", h.handleRemoveCoupon)

		r.Post("/orders", h.handleSubmitOrder)
		r.Get("/orders/current", h.handleGetCurrentOrder)
		r.Post("/orders/current/refresh", h.handleRefreshCurrentOrder)
		r.Delete("/orders/current", h.handleDismissCurrentOrder)
		r.Get("/notifications", h.handleDrainNotifications)

		r.Get("/history", h.handleListHistory)
		r.Delete("/history/{orderID}", h.handleClearHistoryEntry)
		r.Post("/history/{orderID}/bill", h.handleGenerateBill)

		r.Get("/prefs", h.handleGetPreferences)
		r.Put("/prefs", h.handleUpdatePreferences)
		r.Put("/favorites/{menuItemID}", h.handleToggleFavorite)
	})
}
