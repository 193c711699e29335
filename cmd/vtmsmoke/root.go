package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vtmqa/vtmsmoke/internal/config"
	"github.com/vtmqa/vtmsmoke/webdriver"
)

// app is the state shared by all commands.
type app struct {
	cfgFile string
	envFile string
	noColor bool

	cfg *config.Config
	log *logrus.Logger
	out io.Writer
}

// flagKeys maps command line flags to configuration keys. Flags a command
// does not define are skipped.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-path":   "log.path",
	"headless":   "browser.headless",
	"xvfb":       "browser.xvfb",
	"remote-url": "browser.remote_url",
	"driver":     "browser.driver_path",
	"cron":       "schedule.cron",
}

func newRootCmd() *cobra.Command {
	a := &app{log: logrus.New()}

	root := &cobra.Command{
		Use:   "vtmsmoke",
		Short: "Smoke tests for vtm.zive.cz",
		Long: `vtmsmoke opens vtm.zive.cz in Chrome, checks the title, the logo, the
main menu, an article and the search, and appends one row per check to a CSV log.

Run without a subcommand to run the checks once.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runCmdE,
	}

	browserFlags(root)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "configuration file (default ./vtmsmoke.yaml or ~/.config/vtmsmoke/vtmsmoke.yaml)")
	pf.StringVar(&a.envFile, "env", "", "environment file to load (default .env)")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	pf.String("log-level", "", "console log level; trace also logs the WebDriver protocol")
	pf.String("log-format", "", "console log format: text or json")
	pf.String("log-path", "", "CSV result log")
	// glog verbosity for the WebDriver client.
	pf.AddGoFlagSet(flag.CommandLine)

	root.AddCommand(
		a.runCmd(),
		a.installCmd(),
		a.configCmd(),
		a.historyCmd(),
		a.scheduleCmd(),
	)
	return root
}

// browserFlags adds the flags of commands that launch a browser.
func browserFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("headless", false, "run Chrome without a window")
	cmd.Flags().Bool("xvfb", false, "run Chrome on a virtual X display")
	cmd.Flags().String("remote-url", "", "use a running WebDriver endpoint instead of starting chromedriver")
	cmd.Flags().String("driver", "", "chromedriver binary")
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	opts := []config.Option{}
	if a.cfgFile != "" {
		opts = append(opts, config.WithFile(a.cfgFile))
	}
	if a.envFile != "" {
		opts = append(opts, config.WithEnvFile(a.envFile))
	}
	for name, key := range flagKeys {
		opts = append(opts, config.WithFlag(key, cmd.Flags().Lookup(name)))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.out = cmd.OutOrStdout()

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	a.log.SetLevel(level)
	a.log.SetOutput(cmd.ErrOrStderr())
	if cfg.Log.Format == "json" {
		a.log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		a.log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: a.noColor})
	}
	webdriver.SetDebug(level == logrus.TraceLevel)
	return nil
}
