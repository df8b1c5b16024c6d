package signalr

import (
	"strings"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

type groupKind int

const (
	groupAll groupKind = iota
	groupSpecification
	groupJob
)

// group is the narrowest hub group that delivers every notification a filter
// can match. Filtering within the group happens in the registry.
type group struct {
	kind groupKind
	id   string
}

func groupFor(f model.JobMonitoringFilter) group {
	if id := strings.TrimSpace(f.JobID); id != "" {
		return group{kind: groupJob, id: id}
	}
	if id := strings.TrimSpace(f.SpecificationID); id != "" {
		return group{kind: groupSpecification, id: id}
	}
	return group{kind: groupAll}
}

func (g group) startMethod() string {
	switch g.kind {
	case groupJob:
		return methodStartJob
	case groupSpecification:
		return methodStartSpecification
	default:
		return methodStartAll
	}
}

func (g group) stopMethod() string {
	switch g.kind {
	case groupJob:
		return methodStopJob
	case groupSpecification:
		return methodStopSpecification
	default:
		return methodStopAll
	}
}

func (g group) args() []any {
	if g.kind == groupAll {
		return nil
	}
	return []any{g.id}
}
