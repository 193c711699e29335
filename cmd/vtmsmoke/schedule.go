package main

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func (a *app) scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the checks periodically until interrupted",
		Long: `schedule runs the checks on a cron spec (schedule.cron, e.g. "@every 1h" or
"0 */2 * * *"). A run that is still going when the next one is due makes the
next one skip.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.schedule(cmd.Context())
		},
	}
	browserFlags(cmd)
	cmd.Flags().String("cron", "", "cron spec of the runs")
	return cmd
}

func (a *app) schedule(ctx context.Context) error {
	logger := cronLogger{a.log.WithField("component", "schedule")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	id, err := c.AddFunc(a.cfg.Schedule.Cron, func() {
		if err := a.runOnce(ctx); err != nil {
			a.log.WithError(err).Error("Scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule.cron %q: %w", a.cfg.Schedule.Cron, err)
	}

	c.Start()
	a.log.WithFields(logrus.Fields{"cron": a.cfg.Schedule.Cron, "next": c.Entry(id).Next}).Info("Scheduler started")
	<-ctx.Done()
	a.log.Info("Stopping scheduler")
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
