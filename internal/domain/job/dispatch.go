package job

import (
	"fmt"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

// TypeHandler handles one job snapshot routed by job type.
type TypeHandler func(job *model.JobDetails)

// Router routes job snapshots to handlers by job type. Types without a route go
// to the unhandled fallback, so a new job type never disappears silently.
type Router struct {
	routes    map[model.JobType]TypeHandler
	unhandled TypeHandler
}

// NewRouter creates a router with the given fallback. A nil fallback drops unrouted jobs.
func NewRouter(unhandled TypeHandler) *Router {
	return &Router{routes: make(map[model.JobType]TypeHandler), unhandled: unhandled}
}

// On routes the given job types to fn. Routing a type twice panics: it is a
// wiring bug, not a runtime condition.
func (r *Router) On(fn TypeHandler, types ...model.JobType) *Router {
	for _, t := range types {
		if _, dup := r.routes[t]; dup {
			panic(fmt.Sprintf("job type %s routed twice", t))
		}
		r.routes[t] = fn
	}
	return r
}

// Dispatch routes job and reports whether a typed handler (not the fallback) ran.
func (r *Router) Dispatch(job *model.JobDetails) bool {
	if job == nil {
		return false
	}
	if fn, ok := r.routes[job.JobType]; ok {
		fn(job)
		return true
	}
	if r.unhandled != nil {
		r.unhandled(job)
	}
	return false
}

// Types returns every routed job type, sorted.
func (r *Router) Types() []model.JobType {
	out := make([]model.JobType, 0, len(r.routes))
	for t := range r.routes {
		out = append(out, t)
	}
	return model.SortJobTypes(out)
}

// Missing returns the given types that have no route.
func (r *Router) Missing(types ...model.JobType) []model.JobType {
	var out []model.JobType
	for _, t := range types {
		if _, ok := r.routes[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
