package httpx

import (
	"net/http"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
	apperrors "github.com/skillsfundingagency/cfs-jobwatch/internal/errors"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/service"
)

const (
	defaultOutcomeLimit = 50
	maxOutcomeLimit     = 500
)

// SpecificationHandlers serve the per-specification watchers and recorded outcomes.
type SpecificationHandlers struct {
	Watches  *service.WatchService
	Outcomes core.OutcomeRepository
}

type watchResponse struct {
	SpecificationID string `json:"specificationId"`
	Created         bool   `json:"created"`
}

// ListWatches returns every watched specification.
func (h *SpecificationHandlers) ListWatches(w http.ResponseWriter, r *http.Request) {
	if h.Watches == nil {
		WriteAppError(w, r, apperrors.Unavailable("specification watches are not enabled"))
		return
	}
	WriteJSON(w, http.StatusOK, h.Watches.List())
}

// Watch starts watching a specification. It answers 201 for a new watch and 200 when
// the specification was already watched.
func (h *SpecificationHandlers) Watch(w http.ResponseWriter, r *http.Request) {
	if h.Watches == nil {
		WriteAppError(w, r, apperrors.Unavailable("specification watches are not enabled"))
		return
	}
	id := pathID(r, "id")
	created, err := h.Watches.Watch(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, registryError(err))
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, watchResponse{SpecificationID: id, Created: created})
}

// Unwatch stops watching a specification.
func (h *SpecificationHandlers) Unwatch(w http.ResponseWriter, r *http.Request) {
	if h.Watches == nil {
		WriteAppError(w, r, apperrors.Unavailable("specification watches are not enabled"))
		return
	}
	id := pathID(r, "id")
	if !h.Watches.Unwatch(id) {
		WriteAppError(w, r, apperrors.NotFoundf("specification %s is not being watched", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Jobs returns the job state of a watched specification.
func (h *SpecificationHandlers) Jobs(w http.ResponseWriter, r *http.Request) {
	if h.Watches == nil {
		WriteAppError(w, r, apperrors.Unavailable("specification watches are not enabled"))
		return
	}
	state, err := h.Watches.Jobs(pathID(r, "id"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// SQLExport returns the SQL export state of a watched specification as seen by the
// userId query param.
func (h *SpecificationHandlers) SQLExport(w http.ResponseWriter, r *http.Request) {
	if h.Watches == nil {
		WriteAppError(w, r, apperrors.Unavailable("specification watches are not enabled"))
		return
	}
	state, err := h.Watches.SQLExport(pathID(r, "id"), r.URL.Query().Get("userId"))
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// ListOutcomes lists the recorded terminal jobs of a specification, newest first.
func (h *SpecificationHandlers) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.Outcomes == nil {
		WriteAppError(w, r, apperrors.Unavailable("outcome store is not configured"))
		return
	}
	limit := ParseLimit(r, defaultOutcomeLimit, maxOutcomeLimit)
	outcomes, err := h.Outcomes.ListBySpecification(r.Context(), pathID(r, "id"), limit)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	if outcomes == nil {
		outcomes = []model.JobOutcome{}
	}
	WriteJSON(w, http.StatusOK, outcomes)
}
