package httpx

import (
	"net/http"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/service"
)

// ErrorHandlers expose the user-facing error context.
type ErrorHandlers struct {
	Errors *service.ErrorContext
}

// List returns the reported errors, oldest first.
func (h *ErrorHandlers) List(w http.ResponseWriter, r *http.Request) {
	if h.Errors == nil {
		WriteAppError(w, r, apperrors.Unavailable("error context is not configured"))
		return
	}
	errs := h.Errors.Errors()
	if errs == nil {
		errs = []model.ErrorReport{}
	}
	WriteJSON(w, http.StatusOK, errs)
}

// Clear empties the error context.
func (h *ErrorHandlers) Clear(w http.ResponseWriter, r *http.Request) {
	if h.Errors == nil {
		WriteAppError(w, r, apperrors.Unavailable("error context is not configured"))
		return
	}
	h.Errors.Clear()
	w.WriteHeader(http.StatusNoContent)
}
