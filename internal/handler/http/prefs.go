package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/prefs"
)

type PreferencesRequest struct {
	DarkMode      bool   `json:"dark_mode"`
	Locale        string `json:"locale,omitempty" validate:"omitempty,bcp47_language_tag"`
	ForceRealMode *bool  `json:"force_real_mode,omitempty"`
	DemoUser      bool   `json:"demo_user"`
}

type PreferencesResponse struct {
	prefs.Preferences
	// RealMode is the effective force-real-mode setting.
	RealMode  bool     `json:"real_mode"`
	Favorites []string `json:"favorites"`
}

type FavoriteResponse struct {
	MenuItemID string   `json:"menu_item_id"`
	Favorite   bool     `json:"favorite"`
	Favorites  []string `json:"favorites"`
}

func newPreferencesResponse(s *prefs.Store) PreferencesResponse {
	return PreferencesResponse{
		Preferences: s.Get(),
		RealMode:    s.ForceRealMode(),
		Favorites:   s.Favorites(),
	}
}

func (h *OrderingHandler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, newPreferencesResponse(sessionFrom(r).Prefs))
}

func (h *OrderingHandler) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var requestPayload PreferencesRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	store := sessionFrom(r).Prefs
	err := store.Update(prefs.Preferences{
		DarkMode:      requestPayload.DarkMode,
		Locale:        requestPayload.Locale,
		ForceRealMode: requestPayload.ForceRealMode,
		DemoUser:      requestPayload.DemoUser,
	})
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to update preferences")
		respondWithError(w, http.StatusInternalServerError, "Failed to update preferences")
		return
	}

	respondWithJSON(w, http.StatusOK, newPreferencesResponse(store))
}

func (h *OrderingHandler) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	menuItemID := chi.URLParam(r, "menuItemID")
	store := sessionFrom(r).Prefs

	favorite, err := store.ToggleFavorite(menuItemID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), clientMessage(err, "Failed to update favorites"))
		return
	}

	respondWithJSON(w, http.StatusOK, FavoriteResponse{
		MenuItemID: menuItemID,
		Favorite:   favorite,
		Favorites:  store.Favorites(),
	})
}
