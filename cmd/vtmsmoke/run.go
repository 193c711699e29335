package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vtmqa/vtmsmoke/internal/browser"
	"github.com/vtmqa/vtmsmoke/internal/history"
	"github.com/vtmqa/vtmsmoke/internal/metrics"
	"github.com/vtmqa/vtmsmoke/internal/report"
	"github.com/vtmqa/vtmsmoke/internal/resultlog"
	"github.com/vtmqa/vtmsmoke/internal/scenario"
)

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every check once",
		Args:  cobra.NoArgs,
		RunE:  a.runCmdE,
	}
	browserFlags(cmd)
	return cmd
}

func (a *app) runCmdE(cmd *cobra.Command, _ []string) error {
	return a.runOnce(cmd.Context())
}

// runOnce launches the browser, runs the suite and prints the summary.
// Failed checks are not an error; only a run that could not start or was
// interrupted is.
func (a *app) runOnce(ctx context.Context) error {
	session, err := browser.Launch(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.log.WithError(err).Warn("Could not shut the browser down cleanly")
		}
	}()

	recorders := resultlog.Multi{resultlog.NewLogger(a.cfg.Log.Path, a.log)}
	if a.cfg.History.Enabled {
		store, err := history.Open(ctx, a.cfg.History.Path, a.log)
		if err != nil {
			a.log.WithError(err).Warn("History disabled for this run")
		} else {
			defer store.Close()
			recorders = append(recorders, store)
		}
	}
	var collector *metrics.Collector
	if a.cfg.Metrics.Textfile != "" {
		collector = metrics.New()
		recorders = append(recorders, collector)
	}

	results, err := scenario.NewRunner(session, recorders, a.log).Run(ctx, scenario.Suite(a.cfg.Site))
	report.New(a.noColor).Summary(a.out, results)

	if collector != nil {
		if err := collector.Flush(a.cfg.Metrics.Textfile); err != nil {
			a.log.WithError(err).Warn("Could not export metrics")
		}
	}
	return err
}
