package handlers

import (
	"net/http"

	pkghttp "github.com/BradenHooton/vetconnect/pkg/http"
)

// MapsHandler hands the browser maps key to signed-in clients
type MapsHandler struct {
	apiKey string
}

func NewMapsHandler(apiKey string) *MapsHandler {
	return &MapsHandler{apiKey: apiKey}
}

// MapsKeyResponse is the body of GET /maps/key
type MapsKeyResponse struct {
	APIKey string `json:"apiKey"`
}

// Key handles GET /maps/key
func (h *MapsHandler) Key(w http.ResponseWriter, r *http.Request) {
	if h.apiKey == "" {
		pkghttp.WriteInternalError(w, "API key not configured")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, MapsKeyResponse{APIKey: h.apiKey})
}
