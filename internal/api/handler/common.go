package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/issuehound/internal/api/response"
	"github.com/kiranshivaraju/issuehound/internal/ingest"
	"github.com/kiranshivaraju/issuehound/internal/store"
)

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// writeServiceError maps common service errors to API responses. fallback is
// used for anything unrecognized.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var rejErr *ingest.RejectionError
	switch {
	case errors.As(err, &rejErr):
		response.Error(w, http.StatusUnprocessableEntity, "INVALID_REQUEST", rejErr.Reason, nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "CONFLICT", "Conflicting resource already exists", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", fallback, nil)
	}
}
