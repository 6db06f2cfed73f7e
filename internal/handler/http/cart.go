package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/cart"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/coupon"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/money"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/ordering"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/pricing"
)

type AddonPayload struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Price string `json:"price" validate:"required,numeric"`
}

type VariantPayload struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Surcharge string `json:"surcharge" validate:"omitempty,numeric"`
}

type MenuItemPayload struct {
	ID       string           `json:"id" validate:"required"`
	Name     string           `json:"name" validate:"required"`
	Price    string           `json:"price" validate:"required,numeric"`
	Addons   []AddonPayload   `json:"addons,omitempty" validate:"dive"`
	Variants []VariantPayload `json:"variants,omitempty" validate:"dive"`
}

type AddItemRequest struct {
	Item         MenuItemPayload `json:"item"`
	Instructions string          `json:"instructions,omitempty" validate:"max=500"`
	AddonIDs     []string        `json:"addon_ids,omitempty" validate:"dive,required"`
	VariantID    string          `json:"variant_id,omitempty"`
}

type ApplyCouponRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type CartResponse struct {
	Lines        []cart.Line     `json:"lines"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
	TotalDisplay string          `json:"total_display"`
	ItemCount    int             `json:"item_count"`
	Coupon       *coupon.Applied `json:"coupon,omitempty"`
}

type AddItemResponse struct {
	Line cart.Line    `json:"line"`
	Cart CartResponse `json:"cart"`
}

func newCartResponse(s *ordering.Session) CartResponse {
	lines := s.Cart.Lines()
	applied, ok := s.Coupons.Evaluate(pricing.Subtotal(lines))
	totals := pricing.Summarize(lines, applied.Discount)
	resp := CartResponse{
		Lines:        lines,
		Subtotal:     totals.Subtotal,
		Discount:     totals.Discount,
		Total:        totals.Total,
		TotalDisplay: money.Format(totals.Total),
		ItemCount:    totals.ItemCount,
	}
	if ok {
		resp.Coupon = &applied
	}
	return resp
}

func (p MenuItemPayload) toMenuItem() (cart.MenuItem, error) {
	price, err := money.Parse(p.Price)
	if err != nil {
		return cart.MenuItem{}, err
	}
	item := cart.MenuItem{ID: p.ID, Name: p.Name, Price: price}

	for _, a := range p.Addons {
		addonPrice, err := money.Parse(a.Price)
		if err != nil {
			return cart.MenuItem{}, err
		}
		item.Addons = append(item.Addons, cart.Addon{ID: a.ID, Name: a.Name, Price: addonPrice})
	}
	for _, v := range p.Variants {
		surcharge := decimal.Zero
		if v.Surcharge != "" {
			if surcharge, err = money.Parse(v.Surcharge); err != nil {
				return cart.MenuItem{}, err
			}
		}
		item.Variants = append(item.Variants, cart.Variant{ID: v.ID, Name: v.Name, Surcharge: surcharge})
	}
	return item, nil
}

func (h *OrderingHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, newCartResponse(sessionFrom(r)))
}

func (h *OrderingHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var requestPayload AddItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	item, err := requestPayload.Item.toMenuItem()
	if err != nil {
		log.Warn().Err(err).Str("menu_item_id", requestPayload.Item.ID).Msg("handler: invalid menu item price")
		respondWithError(w, http.StatusBadRequest, "Invalid price")
		return
	}

	s := sessionFrom(r)
	line, err := s.Cart.Add(item, requestPayload.Instructions, requestPayload.AddonIDs, requestPayload.VariantID)
	if err != nil {
		log.Warn().Err(err).Str("menu_item_id", item.ID).Msg("handler: failed to add cart line")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to add item"))
		return
	}

	respondWithJSON(w, http.StatusCreated, AddItemResponse{Line: line, Cart: newCartResponse(s)})
}

func (h *OrderingHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "lineID")
	lineID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("line_id", idParam).Msg("handler: failed to parse line id")
		respondWithError(w, http.StatusBadRequest, "Invalid line id")
		return
	}

	s := sessionFrom(r)
	if err := s.Cart.Remove(lineID); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to remove item"))
		return
	}

	respondWithJSON(w, http.StatusOK, newCartResponse(s))
}

func (h *OrderingHandler) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var requestPayload ApplyCouponRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	s := sessionFrom(r)
	if _, err := s.ApplyCoupon(requestPayload.Code); err != nil {
		log.Info().Err(err).Str("code", requestPayload.Code).Msg("handler: coupon rejected")
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to apply coupon"))
		return
	}

	respondWithJSON(w, http.StatusOK, newCartResponse(s))
}

func (h *OrderingHandler) handleRemoveCoupon(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r)
	s.Coupons.Remove()
	respondWithJSON(w, http.StatusOK, newCartResponse(s))
}
