package main

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/drone/envsubst"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.yaml.in/yaml/v3"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/s2e/lcov/pkg/coverage"
	"github.com/s2e/lcov/pkg/genhtml"
	"github.com/s2e/lcov/pkg/lcov"
	"github.com/s2e/lcov/pkg/report"
	"github.com/s2e/lcov/pkg/runs"
	"github.com/s2e/lcov/pkg/symbols"
	"github.com/s2e/lcov/pkg/tbtrace"
)

type lcovParams struct {
	configFile      string
	configExpandEnv bool
	metricsTextfile string

	cfg report.Config
	// overrides copy the flags given on the command line over the values
	// loaded from the config file.
	overrides []func(dst, src *report.Config)
}

func addLcovParams(cmd *kingpin.CmdClause) *lcovParams {
	var (
		params = &lcovParams{}
		c      = &params.cfg
	)
	cmd.Flag("config.file", "YAML file to load the report configuration from. Flags given on the command line take precedence.").Envar(envPrefix + "CONFIG_FILE").StringVar(&params.configFile)
	cmd.Flag("config.expand-env", "Expand ${var} in the config file according to the values of the environment variables.").Default("false").BoolVar(&params.configExpandEnv)
	cmd.Flag("metrics.textfile", "Write the report metrics to this file in the Prometheus text format.").StringVar(&params.metricsTextfile)

	cmd.Flag("project-dir", "Path to the S2E project directory.").Default(".").Envar(envPrefix + "PROJECT_DIR").
		Action(params.override(func(dst, src *report.Config) { dst.Runs.ProjectDir = src.Runs.ProjectDir })).
		StringVar(&c.Runs.ProjectDir)
	cmd.Flag("aggregate-outputs", "Aggregate the coverage of the last N output directories, walking back from s2e-last.").Short('a').Default("0").
		Action(params.override(func(dst, src *report.Config) { dst.Runs.AggregateLastN = src.Runs.AggregateLastN })).
		IntVar(&c.Runs.AggregateLastN)
	cmd.Flag("s2e-out-dir", "Output directory to aggregate. Can be repeated, excludes --aggregate-outputs.").
		Action(params.override(func(dst, src *report.Config) { dst.Runs.RunDirs = src.Runs.RunDirs })).
		StringsVar(&c.Runs.RunDirs)
	cmd.Flag("html", "Render every tracefile as HTML with genhtml.").Default("false").
		Action(params.override(func(dst, src *report.Config) { dst.HTMLOutput = src.HTMLOutput })).
		BoolVar(&c.HTMLOutput)
	cmd.Flag("lcov-out-dir", "Directory to write the tracefiles to. Defaults to the s2e-last directory of the project.").
		Action(params.override(func(dst, src *report.Config) { dst.OutputDir = src.OutputDir })).
		StringVar(&c.OutputDir)
	cmd.Flag("include-covered-files-only", "Leave out source files without any covered line.").Default("false").
		Action(params.override(func(dst, src *report.Config) { dst.OnlyCoveredFiles = src.OnlyCoveredFiles })).
		BoolVar(&c.OnlyCoveredFiles)
	cmd.Flag("symbols.path", "Directory to look up module binaries in, after the project directory. Can be repeated.").Envar(envPrefix + "SYMBOLS_PATH").
		Action(params.override(func(dst, src *report.Config) { dst.Symbols.SearchPaths = src.Symbols.SearchPaths })).
		StringsVar(&c.Symbols.SearchPaths)
	cmd.Flag("symbols.cache-size", "Number of parsed line tables kept in memory.").Default("16").
		Action(params.override(func(dst, src *report.Config) { dst.Symbols.CacheSize = src.Symbols.CacheSize })).
		IntVar(&c.Symbols.CacheSize)
	cmd.Flag("genhtml.path", "Path of the genhtml executable.").Default(genhtml.DefaultPath).Envar(envPrefix + "GENHTML_PATH").
		Action(params.override(func(dst, src *report.Config) { dst.GenHTML.Path = src.GenHTML.Path })).
		StringVar(&c.GenHTML.Path)
	cmd.Flag("genhtml.arg", "Extra argument passed to genhtml. Can be repeated.").
		Action(params.override(func(dst, src *report.Config) { dst.GenHTML.ExtraArgs = src.GenHTML.ExtraArgs })).
		StringsVar(&c.GenHTML.ExtraArgs)
	return params
}

func (p *lcovParams) override(apply func(dst, src *report.Config)) kingpin.Action {
	return func(*kingpin.ParseContext) error {
		p.overrides = append(p.overrides, apply)
		return nil
	}
}

// config returns the effective report configuration.
func (p *lcovParams) config(fs afero.Fs) (report.Config, error) {
	if p.configFile == "" {
		return p.cfg, nil
	}
	cfg, err := loadConfig(fs, p.configFile, p.configExpandEnv)
	if err != nil {
		return report.Config{}, err
	}
	for _, apply := range p.overrides {
		apply(&cfg, &p.cfg)
	}
	return cfg, nil
}

func loadConfig(fs afero.Fs, path string, expandEnv bool) (report.Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return report.Config{}, &runs.ConfigurationError{Msg: "cannot read config file", Err: err}
	}
	if expandEnv {
		s, err := envsubst.EvalEnv(string(data))
		if err != nil {
			return report.Config{}, &runs.ConfigurationError{Msg: "cannot expand environment variables in " + path, Err: err}
		}
		data = []byte(s)
	}

	cfg := report.Config{
		Runs:    runs.Config{ProjectDir: "."},
		GenHTML: genhtml.Config{Path: genhtml.DefaultPath},
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return report.Config{}, &runs.ConfigurationError{Msg: "cannot parse config file " + path, Err: err}
	}
	return cfg, nil
}

func generate(ctx context.Context, params *lcovParams) error {
	fs := afero.NewOsFs()
	cfg, err := params.config(fs)
	if err != nil {
		return err
	}

	resolver, err := symbols.NewManager(logger, fs, symbols.Config{
		SearchPaths: cfg.SearchPaths(),
		CacheSize:   cfg.Symbols.CacheSize,
	})
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	r, err := report.New(logger, cfg, report.Components{
		Selector:  runs.NewSelector(logger, fs),
		Extractor: coverage.NewExtractor(logger, tbtrace.NewLoader(logger, fs)),
		Resolver:  resolver,
		Writer:    lcov.NewWriter(logger, fs),
		Renderer:  genhtml.New(logger, cfg.GenHTML),
		Fs:        fs,
	}, reg)
	if err != nil {
		return err
	}

	results, err := r.Run(ctx)
	if err != nil {
		return err
	}
	printResults(output(ctx), results)

	if params.metricsTextfile != "" {
		if err := prometheus.WriteToTextfile(params.metricsTextfile, reg); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	if err := results.Err(); err != nil {
		level.Warn(logger).Log("msg", "some modules could not be reported", "failed", len(results.Failed()), "total", len(results))
	}
	return nil
}

var (
	successClr = color.New(color.FgGreen)
	failureClr = color.New(color.FgRed)
)

func printResults(out io.Writer, results report.Results) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No module coverage found")
		return
	}
	for _, res := range results {
		if !res.OK() {
			failureClr.Fprintf(out, "%s: %v\n", res.Module, res.Err)
			continue
		}
		successClr.Fprintf(out, "Line coverage saved to %s\n", res.InfoPath)
		if res.HTMLDir != "" {
			successClr.Fprintf(out, "Line coverage HTML report available at %s\n", genhtml.IndexPath(res.HTMLDir))
		}
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Module", "Status", "Lines hit", "Lines found", "%", "Output"})
	for _, res := range results {
		status, outPath := "ok", res.InfoPath
		if !res.OK() {
			status = "failed: " + res.Stage.String()
		}
		if res.HTMLDir != "" {
			outPath = res.HTMLDir
		}
		table.Append([]string{
			res.Module,
			status,
			humanize.Comma(int64(res.LinesHit)),
			humanize.Comma(int64(res.LinesFound)),
			percent(res.LinesHit, res.LinesFound),
			outPath,
		})
	}
	table.Render()
}

func percent(hit, found int) string {
	if found == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", float64(hit)/float64(found)*100)
}
