package roamtech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mobarasa/roamtech-cypress/internal/config"
	"github.com/mobarasa/roamtech-cypress/internal/model"
	"github.com/mobarasa/roamtech-cypress/internal/sink"
	"github.com/mobarasa/roamtech-cypress/internal/storage"
)

const shutdownTimeout = 30 * time.Second

var errShuttingDown = errors.New("server is shutting down")

// Server runs the registered test suites, either once from the command line
// or continuously in server mode.
type Server struct {
	config config.Config

	userSuites    []TestSuite
	userSinks     []Sink
	runnerOptions []RunnerOption
	schedules     []ScheduledRun

	// immutable readonly map of prepared suites
	suites     map[string]model.TestSuite
	suiteNames []string

	runner  *Runner
	report  *Aggregator
	storage storage.Storage
	// cache holds the runs that are still in progress (server mode only).
	cache   *storage.SuiteRunCache
	cron    *cron.Cron
	closers []io.Closer

	// ctx is the parent of all runs started via http or cron.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	shuttingDown  bool
	runningSuites sync.WaitGroup

	port      int
	ready     chan struct{}
	readyOnce sync.Once
	stopped   chan struct{}

	stdout io.Writer
	log    *slog.Logger
}

// New configures a new Server instance.
func New(opts ...Option) *Server {
	s := &Server{
		suites:  map[string]model.TestSuite{},
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
		stdout:  os.Stdout,
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Run parses the command line arguments and either runs the selected suites
// once or starts the server. A cli run returns model.TestFailureError if any
// test failed.
func (s *Server) Run(ctx context.Context, args []string) error {
	defer s.readyOnce.Do(func() { close(s.ready) })

	c, err := config.Load(args)
	if err != nil {
		return err
	}

	s.config = c

	if s.log == nil {
		s.log = c.Logger(os.Stderr)
	}

	defer s.close()

	if err = s.init(); err != nil {
		return err
	}

	if c.Server.Enabled {
		defer close(s.stopped)

		return s.serve(ctx)
	}

	return s.runCLI(ctx)
}

// WaitForStartup blocks until the server is ready to accept requests.
func (s *Server) WaitForStartup() {
	<-s.ready
}

// ServerPort returns the port the http server listens on.
func (s *Server) ServerPort() int {
	<-s.ready

	return s.port
}

// Shutdown stops a server started in server mode and waits until
// all running suites have finished.
func (s *Server) Shutdown() {
	<-s.ready

	if s.cancel == nil {
		return
	}

	s.cancel()

	<-s.stopped
}

func (s *Server) init() error {
	s.report = NewAggregator(s.log)
	s.runner = NewRunner(s.config, s.report, append([]RunnerOption{WithLogger(s.log)}, s.runnerOptions...)...)

	for _, suite := range s.userSuites {
		if _, ok := s.suites[suite.Name]; ok {
			return model.ConfigError{Field: fmt.Sprintf("suite %q", suite.Name), Reason: "duplicate suite name"}
		}

		prepared, err := s.runner.PrepareSuite(suite)
		if err != nil {
			return err
		}

		s.suites[prepared.Name] = prepared
		s.suiteNames = append(s.suiteNames, prepared.Name)
	}

	for _, schedule := range s.config.Schedules {
		s.schedules = append(s.schedules, ScheduledRun{SuiteName: schedule.SuiteName, Schedule: schedule.Cron})
	}

	if err := s.openStorage(); err != nil {
		return err
	}

	sinks, err := s.sinks()
	if err != nil {
		return err
	}

	for _, sk := range sinks {
		if i, ok := sk.(interface{ Init() error }); ok {
			if err := i.Init(); err != nil {
				return fmt.Errorf("initiating sink %q: %w", sk.Name(), err)
			}
		}

		s.report.Attach(sk)
	}

	return nil
}

// openStorage opens the configured database if results are persisted or
// the server needs to look up finished runs.
func (s *Server) openStorage() error {
	c := s.config

	if c.Storage.Driver == "none" || !(c.HasReporter(config.ReporterStorage) || c.Server.Enabled) {
		return nil
	}

	switch c.Storage.Driver {
	case "sqlite":
		db, err := storage.NewSqlite(c.Storage.Path, s.log)
		if err != nil {
			return fmt.Errorf("opening sqlite storage: %w", err)
		}
		s.storage = db
	case "badger":
		db, err := storage.NewBadgerStorage(c.Storage.Path, s.log)
		if err != nil {
			return fmt.Errorf("opening badger storage: %w", err)
		}
		s.storage = db
	}

	return nil
}

// sinks creates the configured sinks in a fixed order followed
// by the sinks passed in as options.
func (s *Server) sinks() ([]Sink, error) {
	c := s.config
	sinks := []Sink{}

	if c.Server.Enabled {
		s.cache = storage.NewSuiteRunCache()
		sinks = append(sinks, s.cache)
	}

	if s.storage != nil {
		sinks = append(sinks, sink.NewStorage(s.storage))
	}

	if c.HasReporter(config.ReporterMetrics) || c.Server.Enabled {
		sinks = append(sinks, sink.NewMetrics())
	}

	if c.HasReporter(config.ReporterConsole) {
		sinks = append(sinks, sink.NewConsole(s.stdout))
	}

	if c.HasReporter(config.ReporterJSON) {
		f, err := s.createReportFile("results.ndjson")
		if err != nil {
			return nil, err
		}

		sinks = append(sinks, sink.NewJSON(f))
	}

	if c.HasReporter(config.ReporterJUnit) {
		sinks = append(sinks, sink.NewJUnit(c.ReportDir))
	}

	if c.HasReporter(config.ReporterHTML) {
		sinks = append(sinks, sink.NewHTML(c.ReportDir))
	}

	if c.HasReporter(config.ReporterSlack) {
		sinks = append(sinks, sink.NewSlack(c.Slack.Channel, c.Slack.Token))
	}

	if c.HasReporter(config.ReporterElastic) {
		e, err := sink.NewElastic(c.Elastic.Addresses, c.Elastic.Index)
		if err != nil {
			return nil, err
		}

		sinks = append(sinks, e)
	}

	return append(sinks, s.userSinks...), nil
}

func (s *Server) createReportFile(name string) (*os.File, error) {
	if err := os.MkdirAll(s.config.ReportDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(s.config.ReportDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating report file: %w", err)
	}

	s.closers = append(s.closers, f)

	return f, nil
}

func (s *Server) close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("closing report file failed", "error", err)
		}
	}

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			s.log.Warn("closing storage failed", "error", err)
		}
	}
}

// runCLI runs the selected suites one after another.
func (s *Server) runCLI(ctx context.Context) error {
	suites, err := s.selectedSuites()
	if err != nil {
		return err
	}

	failed := []model.Summary{}

	for _, suite := range suites {
		run, err := s.newRun(ctx, suite, "cli")
		if err != nil {
			return err
		}

		if summary := s.execute(ctx, suite, run); !summary.Succeeded() {
			failed = append(failed, summary)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("suite run interrupted: %w", err)
	}

	if len(failed) > 0 {
		return model.TestFailureError{Suites: failed}
	}

	return nil
}

func (s *Server) selectedSuites() ([]model.TestSuite, error) {
	names := s.config.Suites
	if len(names) == 0 {
		names = s.suiteNames
	}

	suites := make([]model.TestSuite, 0, len(names))

	for _, name := range names {
		suite, ok := s.suites[name]
		if !ok {
			return nil, model.ConfigError{Field: "suites", Reason: fmt.Sprintf("suite %q not found", name)}
		}

		suites = append(suites, suite)
	}

	return suites, nil
}

func (s *Server) newRun(ctx context.Context, suite model.TestSuite, triggeredBy string) (model.SuiteRun, error) {
	run := model.SuiteRun{
		ID:          uuid.NewString(),
		SuiteName:   suite.Name,
		TriggeredBy: triggeredBy,
		Running:     true,
		Scheduled:   time.Now(),
		Results:     []model.Result{},
	}

	if s.storage != nil {
		if err := s.storage.InsertSuiteRun(ctx, run); err != nil {
			return model.SuiteRun{}, fmt.Errorf("inserting suite run: %w", err)
		}
	}

	if s.cache != nil {
		s.cache.Save(run)
	}

	return run, nil
}

func (s *Server) execute(ctx context.Context, suite model.TestSuite, run model.SuiteRun) model.Summary {
	summary, _ := s.runner.RunSuite(ctx, suite, run.ID)

	// finished runs are looked up in the storage
	if s.cache != nil && s.storage != nil {
		_, _ = s.cache.LoadAndDelete(suite.Name, run.ID)
	}

	return summary
}

// startRun starts a suite run in the background (server mode only).
func (s *Server) startRun(suite model.TestSuite, triggeredBy string) (model.SuiteRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return model.SuiteRun{}, errShuttingDown
	}

	run, err := s.newRun(s.ctx, suite, triggeredBy)
	if err != nil {
		return model.SuiteRun{}, err
	}

	s.runningSuites.Add(1)

	go func() {
		defer s.runningSuites.Done()

		s.execute(s.ctx, suite, run)
	}()

	return run, nil
}

func (s *Server) serve(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	if err := s.startSchedules(); err != nil {
		return err
	}

	l, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", s.config.Server.Port))
	if err != nil {
		s.stopSchedules(shutdownTimeout)
		return fmt.Errorf("listening on port %d: %w", s.config.Server.Port, err)
	}

	s.port = l.Addr().(*net.TCPAddr).Port

	srv := &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- srv.Serve(l)
	}()

	s.log.Info("server started", "port", s.port, "suites", len(s.suites))
	s.readyOnce.Do(func() { close(s.ready) })

	select {
	case <-s.ctx.Done():
	case err = <-serveErr:
	}

	s.log.Info("shutting down server")

	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	s.cancel()
	s.stopSchedules(shutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		s.log.Warn("shutting down http server failed", "error", shutdownErr)
	}

	s.runningSuites.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}

	return nil
}
