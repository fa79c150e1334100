package emuctl

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/emuctl/internal/catalog"
	cfg "github.com/loykin/emuctl/internal/config"
	"github.com/loykin/emuctl/internal/lifecycle"
	"github.com/loykin/emuctl/internal/liveness"
	"github.com/loykin/emuctl/internal/metrics"
	iapi "github.com/loykin/emuctl/internal/server"
	"github.com/loykin/emuctl/internal/status"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Profile = catalog.Profile

type Process = catalog.Process

type Catalog = catalog.Catalog

type Outcome = lifecycle.Outcome

type OutcomeStatus = lifecycle.Status

type Snapshot = status.Snapshot

// ProcessTable enumerates OS processes. Tests substitute an in-memory table.
type ProcessTable = liveness.Table

// Launcher starts emulator executables.
type Launcher = lifecycle.Launcher

var (
	ErrNotFound = lifecycle.ErrNotFound
	ErrDisabled = lifecycle.ErrDisabled
)

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

func NewCatalog(profiles []Profile) (*Catalog, error) { return catalog.New(profiles) }

// Option customizes a Service.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	table    liveness.Table
	launcher lifecycle.Launcher
	sleeper  func(time.Duration)
}

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithProcessTable(t ProcessTable) Option { return func(o *options) { o.table = t } }

func WithLauncher(l Launcher) Option { return func(o *options) { o.launcher = l } }

// WithSleeper replaces time.Sleep for post-start delays.
func WithSleeper(f func(time.Duration)) Option { return func(o *options) { o.sleeper = f } }

// Service is the embeddable emulator controller: one catalog with its
// lifecycle controller and status reporter.
type Service struct {
	catalog  *catalog.Catalog
	ctl      *lifecycle.Controller
	reporter *status.Reporter
	logger   *slog.Logger
}

func New(cat *Catalog, opts ...Option) *Service {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	matcher := liveness.NewMatcher(o.table, o.logger)
	lopts := []lifecycle.Option{lifecycle.WithLogger(o.logger)}
	if o.launcher != nil {
		lopts = append(lopts, lifecycle.WithLauncher(o.launcher))
	}
	if o.sleeper != nil {
		lopts = append(lopts, lifecycle.WithSleeper(o.sleeper))
	}
	return &Service{
		catalog:  cat,
		ctl:      lifecycle.New(cat, matcher, lopts...),
		reporter: status.NewReporter(cat, matcher),
		logger:   o.logger,
	}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

func (s *Service) Start(ctx context.Context, id string) ([]Outcome, error) {
	return s.ctl.Start(ctx, id)
}

func (s *Service) Stop(ctx context.Context, id string) ([]Outcome, error) {
	return s.ctl.Stop(ctx, id)
}

func (s *Service) Status(ctx context.Context, id string) (Snapshot, error) {
	return s.reporter.Snapshot(ctx, id)
}

// Router returns the HTTP control API for the service.
func (s *Service) Router(port int) *iapi.Router {
	return iapi.NewRouter(s.catalog, s.ctl, s.reporter, port, s.logger)
}

// Handler returns the HTTP control API as an http.Handler.
func (s *Service) Handler(port int) http.Handler { return s.Router(port).Handler() }

// NewHTTPServer builds, without starting, an HTTP(S) server for the API.
func (s *Service) NewHTTPServer(addr string, port int, tlsConfig *tls.Config) *http.Server {
	return iapi.NewServer(addr, s.Router(port), tlsConfig)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer builds a server exposing the default registry on addr.
func NewMetricsServer(addr string) *http.Server { return metrics.NewServer(addr, nil) }

// NewMetricsServerFor builds a server exposing g on addr. Use it with the
// registry passed to RegisterMetrics.
func NewMetricsServerFor(addr string, g prometheus.Gatherer) *http.Server {
	return metrics.NewServer(addr, g)
}
