package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/skillsfundingagency/cfs-jobwatch/internal/data"
	"github.com/skillsfundingagency/cfs-jobwatch/internal/domain/model"
)

const (
	defaultOutcomeLimit = 20
	maxOutcomeLimit     = 500
)

type outcomesOptions struct {
	SpecificationID string
	Limit           int
	JSON            bool
	Timeout         time.Duration
}

func runOutcomes(cmdCtx *commandContext, args []string) error {
	opts, err := parseOutcomesFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		outcomes, listErr := data.NewJobOutcomeRepo(db).ListBySpecification(ctx, opts.SpecificationID, opts.Limit)
		if listErr != nil {
			return fmt.Errorf("list outcomes: %w", listErr)
		}
		return printOutcomes(os.Stdout, outcomes, opts.JSON)
	})
}

func parseOutcomesFlags(args []string) (outcomesOptions, error) {
	fs := flag.NewFlagSet("outcomes", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts outcomesOptions
	fs.StringVar(&opts.SpecificationID, "spec", "", "Specification id (required)")
	fs.IntVar(&opts.Limit, "limit", defaultOutcomeLimit, "Maximum number of outcomes, newest first")
	fs.BoolVar(&opts.JSON, "json", false, "Print JSON instead of a table")
	fs.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Maximum duration for the query")

	if err := fs.Parse(args); err != nil {
		return outcomesOptions{}, err
	}

	opts.SpecificationID = strings.TrimSpace(opts.SpecificationID)
	if opts.SpecificationID == "" {
		return outcomesOptions{}, errors.New("--spec is required")
	}
	if opts.Limit < 1 || opts.Limit > maxOutcomeLimit {
		return outcomesOptions{}, fmt.Errorf("--limit must be between 1 and %d", maxOutcomeLimit)
	}
	if opts.Timeout <= 0 {
		return outcomesOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func printOutcomes(w io.Writer, outcomes []model.JobOutcome, asJSON bool) error {
	if asJSON {
		if outcomes == nil {
			outcomes = []model.JobOutcome{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	if len(outcomes) == 0 {
		return writeln(w, "No outcomes recorded")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "JOB ID\tTYPE\tSTATUS\tLAST UPDATED\tOUTCOME"); err != nil {
		return err
	}
	for _, o := range outcomes {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			o.JobID,
			o.JobType,
			o.CompletionStatus,
			o.LastUpdated.UTC().Format(time.RFC3339),
			o.Outcome,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}
