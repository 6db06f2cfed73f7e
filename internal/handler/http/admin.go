package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
)

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id order.ID, status order.Status) error
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed preparing ready completed cancelled"`
}

type UpdateStatusResponse struct {
	ID     order.ID     `json:"id"`
	Status order.Status `json:"status"`
}

// AdminHandler moves orders through the kitchen workflow.
type AdminHandler struct {
	updater  StatusUpdater
	validate *validator.Validate
}

func NewAdminHandler(updater StatusUpdater) *AdminHandler {
	return &AdminHandler{updater: updater, validate: validator.New()}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Patch("/admin/orders/{orderID}/status", h.handleUpdateStatus)
}

func (h *AdminHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}
	status := order.Status(requestPayload.Status)

	if err := h.updater.UpdateStatus(r.Context(), id, status); err != nil {
		log.Error().Err(err).Stringer("order_id", id).Stringer("status", status).Msg("handler: failed to update order status")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to update order status"))
		return
	}

	respondWithJSON(w, http.StatusOK, UpdateStatusResponse{ID: id, Status: status})
}
