package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/history"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
)

type HistoryResponse struct {
	Orders []order.Summary `json:"orders"`
}

type BillResponse struct {
	Order order.Summary `json:"order"`
	Bill  string        `json:"bill"`
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (order.ID, bool) {
	idParam := chi.URLParam(r, "orderID")
	id, err := order.ParseID(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("handler: failed to parse order id")
		respondWithError(w, http.StatusBadRequest, "Invalid order id")
		return order.ID{}, false
	}
	return id, true
}

func (h *OrderingHandler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, HistoryResponse{Orders: sessionFrom(r).History.List()})
}

func (h *OrderingHandler) handleClearHistoryEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	if err := sessionFrom(r).History.Clear(id); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to clear order"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderingHandler) handleGenerateBill(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	entry, err := sessionFrom(r).History.MarkBillGenerated(id)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to generate bill"))
		return
	}

	respondWithJSON(w, http.StatusOK, BillResponse{Order: entry, Bill: history.RenderBill(entry)})
}
