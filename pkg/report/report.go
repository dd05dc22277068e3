// Package report turns the translation block traces of one or more S2E
// runs into one lcov tracefile per module, optionally rendered as HTML.
package report

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/s2e/lcov/pkg/coverage"
	"github.com/s2e/lcov/pkg/genhtml"
	"github.com/s2e/lcov/pkg/lcov"
	"github.com/s2e/lcov/pkg/runs"
)

type RunSelector interface {
	Select(cfg runs.Config) ([]string, error)
}

type Extractor interface {
	Extract(ctx context.Context, dir string, into coverage.ModuleCoverage) (coverage.ModuleCoverage, error)
}

// Resolver maps the address coverage of a module to source lines.
type Resolver interface {
	Coverage(ctx context.Context, modulePath string, addrs coverage.AddressCount, onlyCoveredFiles bool) (coverage.FileLineCoverage, error)
}

// Renderer renders a tracefile into an HTML tree.
type Renderer interface {
	Render(ctx context.Context, infoPath, outDir string) error
}

// Components are the collaborators of a Reporter.
type Components struct {
	Selector  RunSelector
	Extractor Extractor
	Resolver  Resolver
	Writer    *lcov.Writer
	Renderer  Renderer
	// Fs is used to create the output directory.
	Fs afero.Fs
}

// Stage is the last stage a module reached.
type Stage int

const (
	StageMapping Stage = iota
	StageWriting
	StageRendering
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageMapping:
		return "mapping"
	case StageWriting:
		return "writing"
	case StageRendering:
		return "rendering"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Result is the outcome of one module. Err is nil on success.
type Result struct {
	Module     string
	Stage      Stage
	InfoPath   string
	HTMLDir    string
	LinesFound int
	LinesHit   int
	Skipped    []string
	Err        error
}

func (r Result) OK() bool { return r.Err == nil }

// Results are ordered by module path.
type Results []Result

// Failed returns the results that carry an error.
func (rs Results) Failed() Results {
	var failed Results
	for _, r := range rs {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err combines the errors of all failed modules, or returns nil.
func (rs Results) Err() error {
	var err *multierror.Error
	for _, r := range rs {
		if r.Err != nil {
			err = multierror.Append(err, r.Err)
		}
	}
	return err.ErrorOrNil()
}

type Reporter struct {
	logger  log.Logger
	cfg     Config
	c       Components
	metrics *metrics
}

func New(logger log.Logger, cfg Config, c Components, reg prometheus.Registerer) (*Reporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.Selector == nil || c.Extractor == nil || c.Resolver == nil || c.Writer == nil {
		return nil, errors.New("report: selector, extractor, resolver and writer are required")
	}
	if cfg.HTMLOutput && c.Renderer == nil {
		return nil, errors.New("report: HTML output requires a renderer")
	}
	if c.Fs == nil {
		c.Fs = afero.NewOsFs()
	}
	return &Reporter{
		logger:  logger,
		cfg:     cfg,
		c:       c,
		metrics: newMetrics(reg),
	}, nil
}

// Run aggregates the selected runs and reports every module found in them.
//
// The returned error is only set when the report could not be carried out
// at all: bad run selection or unreadable traces. Failures of individual
// modules are recorded in their Result and never stop the other modules.
func (r *Reporter) Run(ctx context.Context) (Results, error) {
	cov, err := r.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	outDir := r.cfg.OutputPath()
	results := make(Results, 0, len(cov))
	// tracefile path to the module that produced it
	written := make(map[string]string, len(cov))
	for _, module := range cov.Modules() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := r.reportModule(ctx, outDir, module, cov[module], written)
		r.metrics.modules.WithLabelValues(statusOf(res.Err)).Inc()
		if res.Err != nil {
			level.Error(r.logger).Log("msg", "failed to report module", "module", module, "stage", res.Stage, "err", res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Aggregate folds the coverage of every selected run directory into a
// single ModuleCoverage.
func (r *Reporter) Aggregate(ctx context.Context) (coverage.ModuleCoverage, error) {
	defer r.observe("aggregating", time.Now())

	dirs, err := r.c.Selector.Select(r.cfg.Runs)
	if err != nil {
		return nil, err
	}
	r.metrics.runDirs.Set(float64(len(dirs)))

	cov := make(coverage.ModuleCoverage)
	for _, dir := range dirs {
		level.Info(r.logger).Log("msg", "extracting coverage info", "dir", dir)
		if cov, err = r.c.Extractor.Extract(ctx, dir, cov); err != nil {
			return nil, err
		}
	}
	r.metrics.addresses.Set(float64(cov.Addresses()))
	level.Info(r.logger).Log(
		"msg", "aggregated coverage",
		"runs", len(dirs),
		"modules", len(cov),
		"addresses", humanize.Comma(int64(cov.Addresses())),
	)
	return cov, nil
}

func (r *Reporter) reportModule(ctx context.Context, outDir, module string, addrs coverage.AddressCount, written map[string]string) (res Result) {
	res = Result{Module: module, Stage: StageMapping}

	fileLines, err := r.mapLines(ctx, module, addrs)
	if err != nil {
		res.Err = &ResolutionError{Module: module, Err: err}
		return res
	}

	res.Stage = StageWriting
	name := filepath.Base(module)
	res.InfoPath = filepath.Join(outDir, name+".info")
	if other, ok := written[res.InfoPath]; ok {
		res.Err = &IOError{Path: res.InfoPath, Err: errors.Errorf("already written for module %s", other)}
		return res
	}
	written[res.InfoPath] = module
	stats, err := r.write(outDir, res.InfoPath, fileLines)
	if err != nil {
		res.Err = &IOError{Path: res.InfoPath, Err: err}
		return res
	}
	res.LinesFound = stats.LinesFound()
	res.LinesHit = stats.LinesHit()
	res.Skipped = stats.Skipped
	r.metrics.lines.WithLabelValues("found").Add(float64(res.LinesFound))
	r.metrics.lines.WithLabelValues("hit").Add(float64(res.LinesHit))
	level.Info(r.logger).Log("msg", "line coverage saved", "module", module, "path", res.InfoPath)

	if r.cfg.HTMLOutput {
		res.Stage = StageRendering
		htmlDir := filepath.Join(outDir, name+"_lcov")
		if err := r.render(ctx, res.InfoPath, htmlDir); err != nil {
			res.Err = &RenderError{Module: module, Err: err}
			return res
		}
		res.HTMLDir = htmlDir
		level.Info(r.logger).Log("msg", "HTML report available", "module", module, "path", genhtml.IndexPath(htmlDir))
	}

	res.Stage = StageDone
	return res
}

func (r *Reporter) mapLines(ctx context.Context, module string, addrs coverage.AddressCount) (cov coverage.FileLineCoverage, err error) {
	defer r.observe("mapping", time.Now())
	defer func() {
		if p := recover(); p != nil {
			err = panicError(p)
		}
	}()
	return r.c.Resolver.Coverage(ctx, module, addrs, r.cfg.OnlyCoveredFiles)
}

func (r *Reporter) write(outDir, path string, cov coverage.FileLineCoverage) (lcov.Stats, error) {
	defer r.observe("writing", time.Now())
	if err := r.c.Fs.MkdirAll(outDir, 0o755); err != nil {
		return lcov.Stats{}, errors.Wrap(err, "create output directory")
	}
	// genhtml fails on missing sources, so drop them when rendering
	return r.c.Writer.Write(path, cov, r.cfg.HTMLOutput)
}

func (r *Reporter) render(ctx context.Context, infoPath, htmlDir string) error {
	defer r.observe("rendering", time.Now())
	return r.c.Renderer.Render(ctx, infoPath, htmlDir)
}

func (r *Reporter) observe(stage string, start time.Time) {
	r.metrics.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
