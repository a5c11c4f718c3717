package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/meridalabs/storefront/internal/store"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain taxonomy to status codes. Infrastructure
// failures are logged in full but surfaced as a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var ve *store.ValidationError
	var nfe *store.NotFoundError
	var ce *store.ConflictError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error(), "code": ve.Code})
	case errors.As(err, &nfe):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nfe.Error()})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, map[string]string{"error": ce.Error(), "code": ce.Code})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
