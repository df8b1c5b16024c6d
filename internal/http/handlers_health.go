package httpx

import (
	"io"
	"net/http"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/service"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// HealthHandlers serves the readiness probe.
type HealthHandlers struct {
	Registry *job.Registry
	Watches  *service.WatchService
}

type readiness struct {
	Status        string `json:"status"`
	Subscriptions int    `json:"subscriptions"`
	Watches       int    `json:"watches"`
}

// Ready reports the number of live subscriptions and watched specifications. It
// answers 503 once the registry has been closed.
func (h *HealthHandlers) Ready(w http.ResponseWriter, _ *http.Request) {
	if h.Registry.Closed() {
		WriteJSON(w, http.StatusServiceUnavailable, readiness{Status: "closed"})
		return
	}
	body := readiness{Status: "ok", Subscriptions: len(h.Registry.Results())}
	if h.Watches != nil {
		body.Watches = len(h.Watches.List())
	}
	WriteJSON(w, http.StatusOK, body)
}
