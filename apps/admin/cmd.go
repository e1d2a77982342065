package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/trezcool/appgen/core/build"
)

var (
	isTerminalFunc = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) } // mockable

	errHelp   = errors.New("help provided")
	errNoDB   = errors.New("migrate needs the postgres store backend")
	errNoJobs = errors.New("no job store configured")
)

type commandLine struct {
	db   *sql.DB // nil unless the store backend is postgres
	jobs build.Repository
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...]                          - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  jobs [-status S] [-platform P] [-appKind K] [-limit N] [-json] - list build jobs, newest first")
	fmt.Fprintln(cli.out, "  diff -kind KIND OLD NEW                            - show what changes between two app configs")
	fmt.Fprintln(cli.out, "  preview -kind KIND [-o FILE] CONFIG                - render the preview of an app config")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	jobsCmd := flag.NewFlagSet("jobs", flag.ContinueOnError)
	jobsCmd.SetOutput(cli.out)
	jobsStatus := jobsCmd.String("status", "", "Only jobs in this status (queued, starting, building, completed, failed).")
	jobsPlatform := jobsCmd.String("platform", "", "Only jobs for this platform (android, ios).")
	jobsKind := jobsCmd.String("appKind", "", "Only jobs for this app kind (guardian, instructor).")
	jobsLimit := jobsCmd.Int("limit", 20, "Maximum number of jobs to list.")
	jobsJSON := jobsCmd.Bool("json", false, "Print JSON even when stdout is a terminal.")

	diffCmd := flag.NewFlagSet("diff", flag.ContinueOnError)
	diffCmd.SetOutput(cli.out)
	diffKind := diffCmd.String("kind", "", "The app kind both configs are resolved against (guardian, instructor).")

	previewCmd := flag.NewFlagSet("preview", flag.ContinueOnError)
	previewCmd.SetOutput(cli.out)
	previewKind := previewCmd.String("kind", "", "The app kind the config is resolved against (guardian, instructor).")
	previewOut := previewCmd.String("o", "", "Write the markup to this file instead of stdout.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "jobs":
		if err := jobsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.listJobs(jobsFilter{
			status:   *jobsStatus,
			platform: *jobsPlatform,
			appKind:  *jobsKind,
			limit:    *jobsLimit,
			json:     *jobsJSON,
		})

	case "diff":
		if err := diffCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *diffKind == "" || diffCmd.NArg() != 2 {
			diffCmd.Usage()
			return errHelp
		}
		return cli.diff(*diffKind, diffCmd.Arg(0), diffCmd.Arg(1))

	case "preview":
		if err := previewCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *previewKind == "" || previewCmd.NArg() != 1 {
			previewCmd.Usage()
			return errHelp
		}
		return cli.preview(*previewKind, previewCmd.Arg(0), *previewOut)

	default:
		cli.printUsage()
		return errHelp
	}
}
