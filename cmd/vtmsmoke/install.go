package main

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vtmqa/vtmsmoke/internal/download"
)

func (a *app) installCmd() *cobra.Command {
	var dir, revision string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download a Chromium snapshot and its chromedriver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, err := download.NewGCS(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			files, err := download.Resolve(ctx, src, revision)
			if err != nil {
				return err
			}
			if err := download.New(dir, a.log).All(ctx, files); err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{
				"driver_path": filepath.Join(dir, "chromedriver"),
				"binary":      filepath.Join(dir, "chrome-linux", "chrome"),
			}).Info("Installed; point browser.driver_path and browser.binary at these files")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "vendor", "directory to install into")
	cmd.Flags().StringVar(&revision, "revision", "", "Chromium snapshot revision (default the latest)")
	return cmd
}
