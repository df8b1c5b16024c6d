// Package service holds the feature watchers and background consumers of the job registry.
//
// Every watcher is a plain registry consumer: it opens a handle, adds its
// subscriptions, routes notifications by job type and keeps its own state.
// Notification handlers run on the registry dispatcher and must not block, so
// anything slow (REST refetches, persistence, alerting) is handed off.
package service

import (
	"log/slog"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/core"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

// MonitorSettings select how watcher subscriptions are fed.
type MonitorSettings struct {
	Mode     job.MonitorMode
	Fallback job.MonitorFallback
}

func (m MonitorSettings) withDefaults() MonitorSettings {
	if m.Mode == "" {
		m.Mode = job.MonitorModeSignalR
	}
	if m.Fallback == "" {
		m.Fallback = job.MonitorFallbackPolling
	}
	return m
}

// WatcherPorts groups the optional collaborators shared by feature watchers.
type WatcherPorts struct {
	Errors         core.ErrorReporter
	PublishedDates core.PublishedDateFetcher
	Logger         *slog.Logger
}

// WatcherOptions configure a feature watcher.
type WatcherOptions struct {
	Registry *job.Registry // Required
	Ports    WatcherPorts
	Monitor  MonitorSettings
}

func (o WatcherOptions) logger(component string) *slog.Logger {
	l := o.Ports.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", component)
}

// failureMessage is the user-facing text for a job that did not succeed.
func failureMessage(j *model.JobDetails) string {
	if j.Outcome != "" {
		return j.Outcome
	}
	return j.JobDescription + ": " + j.StatusDescription
}

// statusMessage summarises a job's progress for display.
func statusMessage(j *model.JobDetails) string {
	return j.JobDescription + ": " + j.StatusDescription
}
