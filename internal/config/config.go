// Package config loads the process wide configuration. It is read once at
// startup and must not be modified afterwards.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

type Config struct {
	// BaseURL is prepended to relative urls of network tests.
	BaseURL     string    `yaml:"baseUrl"`
	Timeouts    Timeouts  `yaml:"timeouts"`
	Retries     Retries   `yaml:"retries"`
	Concurrency int       `yaml:"concurrency"`
	Filter      string    `yaml:"filter"`
	Artifacts   Artifacts `yaml:"artifacts"`
	// Reporters lists the enabled reporting sinks.
	Reporters []string   `yaml:"reporters"`
	ReportDir string     `yaml:"reportDir"`
	Storage   Storage    `yaml:"storage"`
	Slack     Slack      `yaml:"slack"`
	Elastic   Elastic    `yaml:"elastic"`
	Server    Server     `yaml:"server"`
	Schedules []Schedule `yaml:"schedules"`
	Log       Log        `yaml:"log"`
	// Suites limits a cli run to the named suites, all suites are run if empty.
	Suites []string `yaml:"suites"`
}

type Timeouts struct {
	// Default applies to tests of either mode that do not set a timeout.
	Default     time.Duration `yaml:"default"`
	Run         time.Duration `yaml:"run"`
	Interactive time.Duration `yaml:"interactive"`
	// Request is the timeout of a single http request.
	Request time.Duration `yaml:"request"`
	// PageLoad is the timeout of a single browser visit.
	PageLoad time.Duration `yaml:"pageLoad"`
}

type Retries struct {
	Run         int `yaml:"run"`
	Interactive int `yaml:"interactive"`
}

type Artifacts struct {
	Dir string `yaml:"dir"`
	// Screenshots enables screenshots of attempts that did not pass.
	Screenshots bool `yaml:"screenshots"`
	Video       bool `yaml:"video"`
	// Always captures artifacts of passed attempts too.
	Always bool `yaml:"always"`
}

type Storage struct {
	// Driver is one of sqlite, badger or none.
	Driver string `yaml:"driver"`
	// Path is the database file, an empty path uses an in-memory database.
	Path string `yaml:"path"`
}

type Slack struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

type Elastic struct {
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
}

type Server struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type Schedule struct {
	SuiteName string `yaml:"suite"`
	// Cron is a cron expression with seconds, e.g. "0 */5 * * * *" or "@every 1m".
	Cron string `yaml:"cron"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	ReporterConsole = "console"
	ReporterJSON    = "json"
	ReporterJUnit   = "junit"
	ReporterHTML    = "html"
	ReporterStorage = "storage"
	ReporterMetrics = "metrics"
	ReporterSlack   = "slack"
	ReporterElastic = "elastic"
)

var knownReporters = map[string]bool{
	ReporterConsole: true,
	ReporterJSON:    true,
	ReporterJUnit:   true,
	ReporterHTML:    true,
	ReporterStorage: true,
	ReporterMetrics: true,
	ReporterSlack:   true,
	ReporterElastic: true,
}

func Default() Config {
	return Config{
		Timeouts: Timeouts{
			Default:     30 * time.Second,
			Request:     10 * time.Second,
			PageLoad:    60 * time.Second,
			Interactive: 60 * time.Second,
		},
		Retries: Retries{
			Run:         model.DefaultRunAttempts,
			Interactive: model.DefaultInteractiveAttempts,
		},
		Concurrency: 1,
		Artifacts: Artifacts{
			Dir:         "artifacts",
			Screenshots: true,
		},
		Reporters: []string{ReporterConsole, ReporterJSON},
		ReportDir: "reports",
		Storage:   Storage{Driver: "sqlite"},
		Elastic:   Elastic{Index: "roamtech-results"},
		Server:    Server{Port: 1337},
		Log:       Log{Level: "info", Format: "text"},
	}
}

// Load reads the yaml configuration file (if any) on top of the defaults and
// applies command line flags. The returned config has been validated.
func Load(args []string) (Config, error) {
	c := Default()

	fs := flag.NewFlagSet("roamtech", flag.ContinueOnError)
	configFile := fs.String("c", "", "path to the yaml configuration file")
	port := fs.Int("p", -1, "port used by the server (server mode only)")
	serverMode := fs.Bool("s", false, "enable server mode")
	filter := fs.String("f", "", "only run tests whose id matches the regular expression")
	concurrency := fs.Int("concurrency", 0, "number of tests executed in parallel")
	baseURL := fs.String("base-url", "", "base url of network tests")
	reporters := fs.String("reporters", "", "comma separated list of reporters")
	dbPath := fs.String("d", "", "database file, empty uses an in-memory database")

	if err := fs.Parse(args); err != nil {
		return Config{}, model.ConfigError{Field: "flags", Reason: err.Error()}
	}

	if *configFile != "" {
		f, err := os.Open(*configFile)
		if err != nil {
			return Config{}, model.ConfigError{Field: "c", Reason: err.Error()}
		}
		defer f.Close()

		if err = Decode(f, &c); err != nil {
			return Config{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "p":
			c.Server.Port = *port
		case "s":
			c.Server.Enabled = *serverMode
		case "f":
			c.Filter = *filter
		case "concurrency":
			c.Concurrency = *concurrency
		case "base-url":
			c.BaseURL = *baseURL
		case "reporters":
			c.Reporters = splitList(*reporters)
		case "d":
			c.Storage.Path = *dbPath
		}
	})

	if fs.NArg() > 0 {
		c.Suites = fs.Args()
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Decode reads yaml into c, keeping the values of fields that are not set.
func Decode(r io.Reader, c *Config) error {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)

	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return model.ConfigError{Field: "file", Reason: err.Error()}
	}

	return nil
}

func (c Config) Validate() error {
	if c.Timeouts.Default <= 0 {
		return model.ConfigError{Field: "timeouts.default", Reason: "must be greater than 0"}
	}
	if c.Timeouts.Run < 0 || c.Timeouts.Interactive < 0 || c.Timeouts.Request < 0 || c.Timeouts.PageLoad < 0 {
		return model.ConfigError{Field: "timeouts", Reason: "must not be negative"}
	}
	if c.Retries.Run < 1 {
		return model.ConfigError{Field: "retries.run", Reason: "must be at least 1"}
	}
	if c.Retries.Interactive < 1 {
		return model.ConfigError{Field: "retries.interactive", Reason: "must be at least 1"}
	}
	if c.Concurrency < 1 {
		return model.ConfigError{Field: "concurrency", Reason: "must be at least 1"}
	}
	if c.Filter != "" {
		if _, err := regexp.Compile(c.Filter); err != nil {
			return model.ConfigError{Field: "filter", Reason: err.Error()}
		}
	}

	for _, r := range c.Reporters {
		if !knownReporters[r] {
			return model.ConfigError{Field: "reporters", Reason: fmt.Sprintf("unknown reporter %q", r)}
		}
	}

	switch c.Storage.Driver {
	case "sqlite", "badger", "none":
	default:
		return model.ConfigError{Field: "storage.driver", Reason: fmt.Sprintf("unknown driver %q", c.Storage.Driver)}
	}

	if c.HasReporter(ReporterSlack) && (c.Slack.Token == "" || c.Slack.Channel == "") {
		return model.ConfigError{Field: "slack", Reason: "token and channel are required"}
	}
	if c.HasReporter(ReporterElastic) && len(c.Elastic.Addresses) == 0 {
		return model.ConfigError{Field: "elastic.addresses", Reason: "at least one address is required"}
	}
	if c.HasReporter(ReporterStorage) && c.Storage.Driver == "none" {
		return model.ConfigError{Field: "storage.driver", Reason: "storage reporter requires a storage driver"}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return model.ConfigError{Field: "server.port", Reason: "out of range"}
	}

	for _, s := range c.Schedules {
		if s.SuiteName == "" || s.Cron == "" {
			return model.ConfigError{Field: "schedules", Reason: "suite and cron are required"}
		}
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}

	return nil
}

func (c Config) HasReporter(name string) bool {
	for _, r := range c.Reporters {
		if r == name {
			return true
		}
	}

	return false
}

// RetryPolicy builds the retry policy of the configured attempts.
func (c Config) RetryPolicy() model.RetryPolicy {
	return model.RetryPolicy{
		MaxAttemptsByMode: map[model.Mode]int{
			model.ModeRun:         c.Retries.Run,
			model.ModeInteractive: c.Retries.Interactive,
		},
	}
}

// TimeoutFor returns the timeout used by tests of a mode that do not
// declare a timeout of their own.
func (c Config) TimeoutFor(mode model.Mode) time.Duration {
	switch {
	case mode == model.ModeRun && c.Timeouts.Run > 0:
		return c.Timeouts.Run
	case mode == model.ModeInteractive && c.Timeouts.Interactive > 0:
		return c.Timeouts.Interactive
	}

	return c.Timeouts.Default
}

// FilterRegex returns nil if no filter is configured.
func (c Config) FilterRegex() *regexp.Regexp {
	if c.Filter == "" {
		return nil
	}

	return regexp.MustCompile(c.Filter)
}

func (c Config) LogLevel() (slog.Level, error) {
	var l slog.Level

	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return l, model.ConfigError{Field: "log.level", Reason: err.Error()}
	}

	return l, nil
}

// Logger creates the process logger.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, _ := c.LogLevel()

	opts := &slog.HandlerOptions{Level: level}

	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func splitList(s string) []string {
	list := []string{}

	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}

	return list
}
