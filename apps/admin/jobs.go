package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/build"
)

var errUnknownStatus = errors.New("unknown build status")

type jobsFilter struct {
	status   string
	platform string
	appKind  string
	limit    int
	json     bool
}

func (f jobsFilter) toFilter() (build.Filter, error) {
	filter := build.Filter{Limit: f.limit}
	if f.status != "" {
		filter.Status = build.Status(f.status)
		if !filter.Status.IsValid() {
			return filter, errors.Wrap(errUnknownStatus, f.status)
		}
	}
	if f.platform != "" {
		p, err := appconfig.ParsePlatform(f.platform)
		if err != nil {
			return filter, err
		}
		filter.Platform = p
	}
	if f.appKind != "" {
		k, err := appconfig.ParseAppKind(f.appKind)
		if err != nil {
			return filter, err
		}
		filter.AppKind = k
	}
	return filter, nil
}

// listJobs prints a table on a terminal, JSON lines otherwise.
func (cli *commandLine) listJobs(f jobsFilter) error {
	if cli.jobs == nil {
		return errNoJobs
	}
	filter, err := f.toFilter()
	if err != nil {
		return err
	}
	jobs, err := cli.jobs.ListJobs(context.Background(), filter)
	if err != nil {
		return errors.Wrap(err, "listing jobs")
	}

	if f.json || !isTerminalFunc() {
		enc := json.NewEncoder(cli.out)
		for _, job := range jobs {
			if err = enc.Encode(job); err != nil {
				return errors.Wrap(err, "encoding job")
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPLATFORM\tKIND\tSTATUS\tPROGRESS\tCREATED\tLAST MESSAGE")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\n",
			job.ID, job.Platform, job.AppKind, job.Status, job.Progress,
			job.CreatedAt.Format(time.RFC3339), job.LastMessage())
	}
	return w.Flush()
}
