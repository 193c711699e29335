// Package config loads the harness configuration from defaults, an optional
// YAML file, the environment and command line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable override, e.g.
// VTMSMOKE_LOG_PATH for log.path.
const EnvPrefix = "VTMSMOKE"

// Config is the complete harness configuration.
type Config struct {
	Site      SiteConfig      `mapstructure:"site" yaml:"site"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`
}

// SiteConfig holds everything the checks know about the target website.
type SiteConfig struct {
	HomeURL      string     `mapstructure:"home_url" yaml:"home_url"`
	Title        string     `mapstructure:"title" yaml:"title"`
	ConsentLabel string     `mapstructure:"consent_label" yaml:"consent_label"`
	LogoToken    string     `mapstructure:"logo_token" yaml:"logo_token"`
	MenuLinks    []MenuLink `mapstructure:"menu_links" yaml:"menu_links"`
	SearchTerm   string     `mapstructure:"search_term" yaml:"search_term"`
}

// MenuLink is a header navigation link and the URL it must lead to.
type MenuLink struct {
	Text string `mapstructure:"text" yaml:"text"`
	URL  string `mapstructure:"url" yaml:"url"`
}

type LogConfig struct {
	// Path is the CSV result log.
	Path   string `mapstructure:"path" yaml:"path"`
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type TimeoutsConfig struct {
	// Action bounds navigation, clicks and visibility waits.
	Action time.Duration `mapstructure:"action" yaml:"action"`
	// Candidate bounds the visibility wait of a single locator match.
	Candidate time.Duration `mapstructure:"candidate" yaml:"candidate"`
	Poll      time.Duration `mapstructure:"poll" yaml:"poll"`
	// NetworkIdle is how long the resource count must stay unchanged.
	NetworkIdle time.Duration `mapstructure:"network_idle" yaml:"network_idle"`
}

type BrowserConfig struct {
	DriverPath       string `mapstructure:"driver_path" yaml:"driver_path"`
	Binary           string `mapstructure:"binary" yaml:"binary"`
	Port             int    `mapstructure:"port" yaml:"port"`
	Headless         bool   `mapstructure:"headless" yaml:"headless"`
	Xvfb             bool   `mapstructure:"xvfb" yaml:"xvfb"`
	Width            int    `mapstructure:"width" yaml:"width"`
	Height           int    `mapstructure:"height" yaml:"height"`
	Lang             string `mapstructure:"lang" yaml:"lang"`
	RemoteURL        string `mapstructure:"remote_url" yaml:"remote_url"`
	MinDriverVersion string `mapstructure:"min_driver_version" yaml:"min_driver_version"`
}

type ArtifactsConfig struct {
	Screenshots bool   `mapstructure:"screenshots" yaml:"screenshots"`
	Dir         string `mapstructure:"dir" yaml:"dir"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type MetricsConfig struct {
	// Textfile, when set, receives Prometheus metrics after every run.
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron" yaml:"cron"`
}

// DefaultMenuLinks are the header links of vtm.zive.cz and their destinations.
var DefaultMenuLinks = []MenuLink{
	{Text: "Počítače", URL: "https://www.zive.cz/pocitace"},
	{Text: "Mobily", URL: "https://mobilmania.zive.cz/"},
	{Text: "Věda a technika", URL: "https://vtm.zive.cz/"},
	{Text: "Hry", URL: "https://doupe.zive.cz/"},
	{Text: "Filmy a AV", URL: "https://avmania.zive.cz/"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.home_url", "https://vtm.zive.cz/")
	v.SetDefault("site.title", "VTM.cz – Věda, technika, zajímavosti, budoucnost")
	v.SetDefault("site.consent_label", "Souhlasím")
	v.SetDefault("site.logo_token", "VTM")
	links := make([]map[string]string, len(DefaultMenuLinks))
	for i, l := range DefaultMenuLinks {
		links[i] = map[string]string{"text": l.Text, "url": l.URL}
	}
	v.SetDefault("site.menu_links", links)
	v.SetDefault("site.search_term", "test")

	v.SetDefault("log.path", "log.csv")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("timeouts.action", 20*time.Second)
	v.SetDefault("timeouts.candidate", 5*time.Second)
	v.SetDefault("timeouts.poll", 100*time.Millisecond)
	v.SetDefault("timeouts.network_idle", 500*time.Millisecond)

	v.SetDefault("browser.driver_path", filepath.Join("vendor", "chromedriver"))
	v.SetDefault("browser.binary", "")
	v.SetDefault("browser.port", 0)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.xvfb", false)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)
	v.SetDefault("browser.lang", "cs-CZ")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.min_driver_version", "")

	v.SetDefault("artifacts.screenshots", true)
	v.SetDefault("artifacts.dir", "artifacts")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "history.db")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("schedule.cron", "@every 1h")
}

type options struct {
	file    string
	envFile string
	flags   map[string]*pflag.Flag
}

// Option configures Load.
type Option func(*options)

// WithFile reads the given YAML file instead of searching the default
// locations. A missing file is an error.
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithEnvFile loads environment variables from path instead of ./.env.
func WithEnvFile(path string) Option {
	return func(o *options) {
		o.envFile = path
	}
}

// WithFlag binds a command line flag to a configuration key. The flag wins
// over every other source when it was set explicitly.
func WithFlag(key string, f *pflag.Flag) Option {
	return func(o *options) {
		if f == nil {
			return
		}
		if o.flags == nil {
			o.flags = make(map[string]*pflag.Flag)
		}
		o.flags[key] = f
	}
}

// Load builds the configuration. Sources in increasing precedence: defaults,
// vtmsmoke.yaml, .env, environment, flags.
func Load(opts ...Option) (*Config, error) {
	o := &options{envFile: ".env"}
	for _, opt := range opts {
		opt(o)
	}

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", o.envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if o.file != "" {
		v.SetConfigFile(o.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", o.file, err)
		}
	} else {
		v.SetConfigName("vtmsmoke")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "vtmsmoke"))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, f := range o.flags {
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding flag --%s: %w", f.Name, err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without consulting any file,
// the environment or flags.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: decoding defaults: %v", err))
	}
	return cfg
}

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Site.HomeURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site.home_url %q is not an absolute URL", c.Site.HomeURL)
	}
	if c.Site.ConsentLabel == "" {
		return errors.New("site.consent_label must not be empty")
	}
	if len(c.Site.MenuLinks) == 0 {
		return errors.New("site.menu_links must list at least one link")
	}
	for i, l := range c.Site.MenuLinks {
		if l.Text == "" || l.URL == "" {
			return fmt.Errorf("site.menu_links[%d] needs both text and url", i)
		}
	}
	if c.Log.Path == "" {
		return errors.New("log.path must not be empty")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	if c.Timeouts.Action <= 0 || c.Timeouts.Candidate <= 0 || c.Timeouts.Poll <= 0 {
		return errors.New("timeouts.action, timeouts.candidate and timeouts.poll must be positive")
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser window %dx%d is invalid", c.Browser.Width, c.Browser.Height)
	}
	if c.Browser.Headless && c.Browser.Xvfb {
		return errors.New("browser.headless and browser.xvfb are mutually exclusive")
	}
	return nil
}

// YAML renders the configuration as a loadable vtmsmoke.yaml.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
