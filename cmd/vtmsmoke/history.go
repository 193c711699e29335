package main

import (
	"github.com/spf13/cobra"

	"github.com/vtmqa/vtmsmoke/internal/history"
	"github.com/vtmqa/vtmsmoke/internal/report"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		limit int
		runs  bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := history.Open(ctx, a.cfg.History.Path, a.log)
			if err != nil {
				return err
			}
			defer store.Close()

			r := report.New(a.noColor)
			if runs {
				list, err := store.Runs(ctx, limit)
				if err != nil {
					return err
				}
				r.Runs(a.out, list)
				return nil
			}
			rows, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			r.History(a.out, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows to show")
	cmd.Flags().BoolVar(&runs, "runs", false, "summarize per run instead of listing checks")
	return cmd
}
