// Package build is the build orchestrator. Dev mode runs an initial build,
// then the file watcher and the dev server until interrupted; build mode
// runs every category once into the production root.
package build

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/conneroisu/siteforge/internal/assets"
	"github.com/conneroisu/siteforge/internal/config"
	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
	"github.com/conneroisu/siteforge/internal/metrics"
	"github.com/conneroisu/siteforge/internal/pipeline"
	"github.com/conneroisu/siteforge/internal/server"
	"github.com/conneroisu/siteforge/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// Orchestrator wires the category table to the watcher and the server.
type Orchestrator struct {
	cfg      *config.Config
	logger   logging.Logger
	fs       afero.Fs
	stats    *metrics.BuildStats
	registry *prom.Registry
	recorder metrics.Recorder
	client   *http.Client
	board    *statusBoard
	boardMu  sync.Mutex
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithFs replaces the OS filesystem, mostly for tests.
func WithFs(fs afero.Fs) Option {
	return func(o *Orchestrator) { o.fs = fs }
}

// WithHTTPClient sets the client used by the image optimizer.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

// New creates an orchestrator for cfg.
func New(cfg *config.Config, logger logging.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	registry := prom.NewRegistry()
	stats := metrics.NewBuildStats()

	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger.WithComponent("build"),
		fs:       afero.NewOsFs(),
		stats:    stats,
		registry: registry,
		recorder: metrics.Multi{stats, metrics.NewPrometheusRecorder(registry)},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stats returns the run counters.
func (o *Orchestrator) Stats() metrics.Snapshot {
	return o.stats.Snapshot()
}

// Statuses returns the last run of every category.
func (o *Orchestrator) Statuses() []server.CategoryStatus {
	o.boardMu.Lock()
	board := o.board
	o.boardMu.Unlock()
	if board == nil {
		return nil
	}
	return board.snapshot()
}

// Table resolves the category table for profile without running anything.
func (o *Orchestrator) Table(profile Profile, notifier pipeline.Notifier) (*assets.Table, error) {
	sourceRoot, err := filepath.Abs(o.cfg.Source)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "resolving source root", err)
	}
	outputRoot := o.cfg.Output.Dev
	if profile == ProfileProduction {
		outputRoot = o.cfg.Output.Prod
	}
	if err := o.fs.MkdirAll(outputRoot, 0o755); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWriteFailed, "creating output root "+outputRoot, err)
	}

	table, err := NewTable(profile, Deps{
		Config:     o.cfg,
		SourceRoot: sourceRoot,
		Source:     afero.NewReadOnlyFs(afero.NewBasePathFs(o.fs, o.cfg.Source)),
		Output:     afero.NewBasePathFs(o.fs, outputRoot),
		Notifier:   notifier,
		Logger:     o.logger,
		Recorder:   o.recorder,
		HTTPClient: o.client,
	})
	if err != nil {
		return nil, err
	}

	o.boardMu.Lock()
	o.board = newStatusBoard(table.Names())
	o.boardMu.Unlock()
	return table, nil
}

// BuildOptions configures a production build.
type BuildOptions struct {
	// Clean removes the production root first.
	Clean bool
}

// Build runs every category once into the production root, concurrently.
// A failing category never stops the others; the returned error is non-nil
// when any category failed.
func (o *Orchestrator) Build(ctx context.Context, opts BuildOptions) (*Report, error) {
	if err := o.checkSource(); err != nil {
		return nil, err
	}
	if opts.Clean {
		o.logger.Info(ctx, "Removing production root", "path", o.cfg.Output.Prod)
		if err := o.fs.RemoveAll(o.cfg.Output.Prod); err != nil {
			return nil, errors.NewIOError(errors.ErrCodeWriteFailed, "cleaning "+o.cfg.Output.Prod, err)
		}
	}

	table, err := o.Table(ProfileProduction, nil)
	if err != nil {
		return nil, err
	}

	report := o.runAll(ctx, table, 0)
	report.Profile = ProfileProduction

	if err := report.Err(); err != nil {
		o.logger.Error(ctx, err, "Production build failed", "failed", report.Failed())
		return report, err
	}
	o.logger.Info(ctx, "Production build finished",
		"categories", len(report.Results),
		"files", report.Written(),
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}

// runAll runs every category concurrently and waits for all of them.
func (o *Orchestrator) runAll(ctx context.Context, table *assets.Table, limit int) *Report {
	start := time.Now()
	report := &Report{}
	var mu sync.Mutex

	p := pool.New()
	if limit > 0 {
		p = p.WithMaxGoroutines(limit)
	}
	for _, c := range table.Categories() {
		p.Go(func() {
			res := o.run(ctx, c)
			mu.Lock()
			report.Results = append(report.Results, CategoryResult{
				Category: c.Name,
				Written:  res.Written,
				Duration: res.Duration,
				Err:      res.Err,
			})
			mu.Unlock()
		})
	}
	p.Wait()

	report.sort()
	report.Duration = time.Since(start)
	return report
}

// run executes one category and records the outcome. Errors end here.
func (o *Orchestrator) run(ctx context.Context, c *assets.Category) *pipeline.Result {
	res, err := c.Pipeline.Run(ctx)
	if res == nil {
		res = &pipeline.Result{Category: c.Name, Err: err}
	}

	o.boardMu.Lock()
	board := o.board
	o.boardMu.Unlock()
	if board != nil {
		board.record(res)
	}
	return res
}

// Dev runs the initial build, then the watcher and the dev server until ctx
// is cancelled. It returns a watch error when file notification fails.
func (o *Orchestrator) Dev(ctx context.Context) error {
	if err := o.checkSource(); err != nil {
		return err
	}

	srv := server.New(server.Options{
		Root:     o.cfg.Output.Dev,
		Host:     o.cfg.Server.Host,
		Port:     o.cfg.Server.Port,
		Open:     o.cfg.Server.Open,
		Logger:   o.logger,
		Recorder: o.recorder,
		Metrics:  metrics.HTTPHandler(o.registry),
		Status:   o,
	})

	table, err := o.Table(ProfileDev, srv)
	if err != nil {
		_ = srv.Shutdown(ctx)
		return err
	}

	if o.cfg.Dev.InitialBuild {
		report := o.runAll(ctx, table, o.cfg.Dev.MaxConcurrentRuns)
		if failed := report.Failed(); len(failed) > 0 {
			o.logger.Warn(ctx, report.Err(), "Initial build had failures", "failed", failed)
		} else {
			o.logger.Info(ctx, "Initial build finished", "files", report.Written(), "duration_ms", report.Duration.Milliseconds())
		}
	}

	fw, err := watcher.NewFileWatcher(o.cfg.Source, table, watcher.Options{
		Debounce: o.cfg.Watch.Debounce,
		Logger:   o.logger,
	})
	if err != nil {
		_ = srv.Shutdown(ctx)
		return err
	}

	runs := pool.New()
	if o.cfg.Dev.MaxConcurrentRuns > 0 {
		runs = runs.WithMaxGoroutines(o.cfg.Dev.MaxConcurrentRuns)
	}
	// In-flight runs are never cancelled; shutdown waits for them.
	runCtx := context.WithoutCancel(ctx)

	var stopped sync.Once
	stop := func() {
		stopped.Do(func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := fw.Close(); err != nil {
				o.logger.Warn(shutdownCtx, err, "Closing watcher failed")
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				o.logger.Warn(shutdownCtx, err, "Server shutdown failed")
			}
		})
	}

	g := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	g.Go(func(ctx context.Context) error {
		return srv.Start(ctx)
	})
	g.Go(func(ctx context.Context) error {
		return fw.Watch(ctx, func(ev watcher.ChangeEvent) {
			o.logger.Debug(ctx, "Change detected", "path", ev.Path, "type", ev.Type.String(), "category", ev.Category.Name)
			runs.Go(func() { o.run(runCtx, ev.Category) })
		})
	})
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		stop()
		return nil
	})

	err = g.Wait()
	stop()
	runs.Wait()
	o.logger.Info(context.WithoutCancel(ctx), "Dev mode stopped")
	return err
}

func (o *Orchestrator) checkSource() error {
	info, err := o.fs.Stat(o.cfg.Source)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "source root "+o.cfg.Source+" is not accessible: "+err.Error())
	}
	if !info.IsDir() {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "source root "+o.cfg.Source+" is not a directory")
	}
	return nil
}
