package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/cart"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/coupon"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/history"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/ordering"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/prefs"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/tracker"
)

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("handler: failed to write JSON response")
	}
}

// decodeAndValidate writes the error response itself and reports whether
// the handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("handler: failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}

	err := validate.Struct(dst)
	if err == nil {
		return true
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
		return false
	}

	log.Error().Err(err).Type("validation_error_type", err).Msg("handler: unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, "Internal validation error")
	return false
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			details[field] = fmt.Sprintf("failed on '%s=%s'", fe.Tag(), fe.Param())
		} else {
			details[field] = fmt.Sprintf("failed on '%s'", fe.Tag())
		}
	}
	return details
}

func mapErrorToStatusCode(err error) int {
	var submitErr *order.SubmitError
	if errors.As(err, &submitErr) {
		if submitErr.Kind == order.KindValidation {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}

	switch {
	case errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, history.ErrEntryNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, tracker.ErrNothingTracked):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrUnknownAddon),
		errors.Is(err, cart.ErrUnknownVariant),
		errors.Is(err, cart.ErrMissingItemID),
		errors.Is(err, cart.ErrNegativePrice),
		errors.Is(err, prefs.ErrEmptyMenuItem),
		errors.Is(err, order.ErrInvalidID),
		errors.Is(err, ordering.ErrInvalidSession),
		errors.Is(err, ordering.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, coupon.ErrInvalidCode),
		errors.Is(err, coupon.ErrBelowMinimum):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrStatusAlreadySet),
		errors.Is(err, order.ErrInvalidStatusTransition):
		return http.StatusConflict
	case errors.Is(err, order.ErrRemoteUnavailable),
		errors.Is(err, ordering.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is the text shown to the customer for err.
func clientMessage(err error, fallback string) string {
	var submitErr *order.SubmitError
	if errors.As(err, &submitErr) {
		return submitErr.Message
	}
	var rejection *coupon.RejectionError
	if errors.As(err, &rejection) {
		return rejection.Reason
	}
	if mapErrorToStatusCode(err) == http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}
