package http

import (
	"errors"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/tracker"
)

type SubmitOrderRequest struct {
	RestaurantID  string `json:"restaurant_id" validate:"omitempty,uuid"`
	TableNumber   string `json:"table_number" validate:"max=16"`
	CustomerName  string `json:"customer_name,omitempty" validate:"max=100"`
	CustomerEmail string `json:"customer_email,omitempty" validate:"omitempty,email"`
	Notes         string `json:"notes,omitempty" validate:"max=500"`
}

type SubmitOrderResponse struct {
	Order    order.Summary `json:"order"`
	Fallback bool          `json:"fallback"`
}

type NotificationsResponse struct {
	Notifications []tracker.Notification `json:"notifications"`
}

func (h *OrderingHandler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload SubmitOrderRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	restaurantID := uuid.Nil
	if requestPayload.RestaurantID != "" {
		restaurantID = uuid.FromStringOrNil(requestPayload.RestaurantID)
	}

	res, err := sessionFrom(r).Submit(r.Context(), order.Request{
		RestaurantID:  restaurantID,
		TableNumber:   requestPayload.TableNumber,
		CustomerName:  requestPayload.CustomerName,
		CustomerEmail: requestPayload.CustomerEmail,
		Notes:         requestPayload.Notes,
	})
	if err != nil {
		log.Warn().Err(err).Str("restaurant_id", requestPayload.RestaurantID).Msg("handler: order submission failed")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to place order"))
		return
	}

	respondWithJSON(w, http.StatusCreated, SubmitOrderResponse{Order: res.Order, Fallback: res.Fallback})
}

func (h *OrderingHandler) handleGetCurrentOrder(w http.ResponseWriter, r *http.Request) {
	snap, ok := sessionFrom(r).Tracker.Current()
	if !ok {
		respondWithError(w, http.StatusNotFound, "No order is being tracked")
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}

func (h *OrderingHandler) handleRefreshCurrentOrder(w http.ResponseWriter, r *http.Request) {
	snap, err := sessionFrom(r).Tracker.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, tracker.ErrNothingTracked) {
			respondWithError(w, http.StatusNotFound, "No order is being tracked")
			return
		}
		log.Error().Err(err).Msg("handler: failed to refresh current order")
		respondWithError(w, http.StatusInternalServerError, "Failed to refresh order")
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}

func (h *OrderingHandler) handleDismissCurrentOrder(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Tracker.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderingHandler) handleDrainNotifications(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, NotificationsResponse{Notifications: sessionFrom(r).Inbox.Drain()})
}
