package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/config"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/bootstrap"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/job"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

// notificationBuffer bounds notifications waiting to be printed.
const notificationBuffer = 256

// filterFlags are the job filter flags shared by watch and fetch-jobs.
type filterFlags struct {
	spec     string
	jobID    string
	types    string
	entity   string
	children bool
}

func (f *filterFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.spec, "spec", "", "Specification id")
	fs.StringVar(&f.jobID, "job", "", "Job id")
	fs.StringVar(&f.types, "types", "", "Comma separated job types")
	fs.StringVar(&f.entity, "entity", "", "Trigger entity id")
	fs.BoolVar(&f.children, "children", false, "Include child jobs of --job")
}

func (f *filterFlags) filter() (model.JobMonitoringFilter, error) {
	filter := model.JobMonitoringFilter{
		SpecificationID:   strings.TrimSpace(f.spec),
		JobID:             strings.TrimSpace(f.jobID),
		TriggerByEntityID: strings.TrimSpace(f.entity),
		IncludeChildJobs:  f.children,
		JobTypes:          model.ParseJobTypes(f.types),
	}
	for _, t := range filter.JobTypes {
		if !t.Known() {
			return filter, fmt.Errorf("unknown job type %q", t)
		}
	}
	if filter.IncludeChildJobs && filter.JobID == "" {
		return filter, errors.New("--children requires --job")
	}
	return filter, nil
}

type watchOptions struct {
	Filter   model.JobMonitoringFilter
	Prior    bool
	Mode     job.MonitorMode
	Fallback job.MonitorFallback
	Duration time.Duration
}

func parseWatchFlags(args []string, defaultMode, defaultFallback string) (watchOptions, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		ff       filterFlags
		opts     watchOptions
		mode     string
		fallback string
	)
	ff.register(fs)
	fs.BoolVar(&opts.Prior, "prior", true, "Emit the current state of matching jobs first")
	fs.StringVar(&mode, "mode", defaultMode, "Monitor mode: SignalR, Polling or Off")
	fs.StringVar(&fallback, "fallback", defaultFallback, "Fallback when push drops: None or Polling")
	fs.DurationVar(&opts.Duration, "duration", 0, "Stop after this long; zero runs until interrupted")

	if err := fs.Parse(args); err != nil {
		return watchOptions{}, err
	}

	filter, err := ff.filter()
	if err != nil {
		return watchOptions{}, err
	}
	opts.Filter = filter
	opts.Mode = job.MonitorMode(mode)
	opts.Fallback = job.MonitorFallback(fallback)
	if !opts.Mode.Valid() {
		return watchOptions{}, fmt.Errorf("invalid --mode %q", mode)
	}
	if !opts.Fallback.Valid() {
		return watchOptions{}, fmt.Errorf("invalid --fallback %q", fallback)
	}
	if opts.Duration < 0 {
		return watchOptions{}, errors.New("--duration cannot be negative")
	}
	return opts, nil
}

func runWatch(cmdCtx *commandContext, args []string) error {
	opts, err := parseWatchFlags(args, cmdCtx.Config.Monitor.Mode, cmdCtx.Config.Monitor.Fallback)
	if err != nil {
		return err
	}

	ctx, stop := interruptible(cmdCtx.Ctx)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	reg, cleanup, err := openRegistry(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	notifications := make(chan job.JobNotification, notificationBuffer)
	h := reg.Open(job.HandleOptions{
		Name: "admin_watch",
		OnNewNotification: func(n job.JobNotification) {
			select {
			case notifications <- n:
			default:
				cmdCtx.Logger.Warn("output too slow; dropping notification", "job_id", jobID(n))
			}
		},
	})
	defer h.Close()

	sub, err := h.AddSub(ctx, job.AddSubscriptionRequest{
		FilterBy:                opts.Filter,
		FetchPriorNotifications: opts.Prior,
		MonitorMode:             opts.Mode,
		MonitorFallback:         opts.Fallback,
		OnError: func(err error) {
			cmdCtx.Logger.Warn("job monitoring error", "filter", opts.Filter.Key(), "error", err)
		},
		OnDisconnect: func() {
			cmdCtx.Logger.Warn("push connection lost", "filter", opts.Filter.Key())
		},
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	cmdCtx.Logger.Info("watching jobs", "subscription_id", sub.ID, "filter", opts.Filter.Key(), "transport", sub.Transport)

	return streamNotifications(ctx, os.Stdout, notifications)
}

// streamNotifications writes one JSON document per line until ctx is done.
func streamNotifications(ctx context.Context, w io.Writer, in <-chan job.JobNotification) error {
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-in:
			if err := enc.Encode(n); err != nil {
				return fmt.Errorf("write notification: %w", err)
			}
		}
	}
}

func jobID(n job.JobNotification) string {
	if n.LatestJob == nil {
		return ""
	}
	return n.LatestJob.JobID
}

// openRegistry builds a registry over the configured jobs API and push transport.
// cleanup closes it and any Redis connection it needed.
func openRegistry(cmdCtx *commandContext) (*job.Registry, func(), error) {
	cfg := &cmdCtx.Config
	tokens := bootstrap.NewTokenSource(cfg.OAuth)
	jobs, err := bootstrap.NewJobsAPIClient(cfg.JobsAPI, tokens, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}

	deps := bootstrap.PushDeps{Config: cfg, Logger: cmdCtx.Logger}
	if cfg.Monitor.Push == config.PushSourceRedis {
		client, redisErr := connectRedisIfEnabled(cmdCtx)
		if redisErr != nil {
			return nil, nil, redisErr
		}
		deps.Redis = client
	}
	closeRedis := func() {
		if deps.Redis != nil {
			if cerr := deps.Redis.Close(); cerr != nil {
				cmdCtx.Logger.Warn("redis close failed", "error", cerr)
			}
		}
	}

	push, err := bootstrap.NewPushTransport(deps, tokens)
	if err != nil {
		closeRedis()
		return nil, nil, err
	}

	reg, err := job.NewRegistry(job.RegistryOptions{
		Fetcher:      jobs,
		Push:         push,
		Logger:       cmdCtx.Logger,
		PollInterval: cfg.Monitor.PollInterval,
		FetchTimeout: cfg.Monitor.FetchTimeout,
		OnError: func(err error) {
			cmdCtx.Logger.Warn("job registry error", "error", err)
		},
	})
	if err != nil {
		closeRedis()
		return nil, nil, err
	}

	return reg, func() {
		if cerr := reg.Close(); cerr != nil {
			cmdCtx.Logger.Warn("registry close failed", "error", cerr)
		}
		closeRedis()
	}, nil
}

type fetchOptions struct {
	Filter  model.JobMonitoringFilter
	Timeout time.Duration
}

func parseFetchFlags(args []string) (fetchOptions, error) {
	fs := flag.NewFlagSet("fetch-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		ff   filterFlags
		opts fetchOptions
	)
	ff.register(fs)
	fs.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Maximum duration for the request")

	if err := fs.Parse(args); err != nil {
		return fetchOptions{}, err
	}
	filter, err := ff.filter()
	if err != nil {
		return fetchOptions{}, err
	}
	opts.Filter = filter
	if opts.Timeout <= 0 {
		return fetchOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runFetchJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseFetchFlags(args)
	if err != nil {
		return err
	}

	jobs, err := bootstrap.NewJobsAPIClient(cmdCtx.Config.JobsAPI, bootstrap.NewTokenSource(cmdCtx.Config.OAuth), cmdCtx.Logger)
	if err != nil {
		return err
	}

	ctx, stop := interruptible(cmdCtx.Ctx)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	summaries, err := jobs.FetchJobs(ctx, opts.Filter)
	if err != nil {
		return fmt.Errorf("fetch jobs: %w", err)
	}

	details := make([]*model.JobDetails, 0, len(summaries))
	for _, s := range summaries {
		d, convErr := model.NewJobDetails(s)
		if convErr != nil {
			cmdCtx.Logger.Warn("skipping malformed job record", "error", convErr)
			continue
		}
		details = append(details, d)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(details)
}
