// Package runs decides which S2E output directories a report aggregates.
package runs

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
)

const (
	// LastRunName is the symlink S2E maintains to the most recent output
	// directory of a project.
	LastRunName = "s2e-last"
	// OutputDirPrefix prefixes every numbered output directory.
	OutputDirPrefix = "s2e-out"
)

// ConfigurationError reports malformed run selection parameters.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Msg, e.Err)
	}
	return "configuration error: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type Config struct {
	ProjectDir     string   `yaml:"project_dir"`
	AggregateLastN int      `yaml:"aggregate_outputs"`
	RunDirs        []string `yaml:"s2e_out_dirs"`
}

func (cfg *Config) Validate() error {
	if cfg.AggregateLastN < 0 {
		return &ConfigurationError{Msg: fmt.Sprintf("aggregate-outputs must not be negative, got %d", cfg.AggregateLastN)}
	}
	if cfg.AggregateLastN > 0 && len(cfg.RunDirs) > 0 {
		return &ConfigurationError{Msg: "aggregate-outputs and s2e-out-dir are mutually exclusive"}
	}
	return nil
}

// LastRunPath is the canonical path of the most recent run.
func (cfg *Config) LastRunPath() string {
	return filepath.Join(cfg.ProjectDir, LastRunName)
}

type Option func(*Selector)

// WithRealpath overrides how the canonical last run path is resolved.
func WithRealpath(fn func(string) (string, error)) Option {
	return func(s *Selector) {
		s.realpath = fn
	}
}

type Selector struct {
	logger   log.Logger
	fs       afero.Fs
	realpath func(string) (string, error)
}

func NewSelector(logger log.Logger, fs afero.Fs, opts ...Option) *Selector {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := &Selector{
		logger:   logger,
		fs:       fs,
		realpath: filepath.EvalSymlinks,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select returns the run directories to aggregate, most recent first.
//
//   - AggregateLastN > 0 walks back from the directory s2e-last points to
//     and keeps the candidates that exist.
//   - Otherwise the explicit RunDirs are returned unchanged.
//   - With neither, the canonical s2e-last path is used alone.
func (s *Selector) Select(cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AggregateLastN > 0 {
		return s.lastN(cfg.LastRunPath(), cfg.AggregateLastN)
	}
	if len(cfg.RunDirs) > 0 {
		return cfg.RunDirs, nil
	}
	return []string{cfg.LastRunPath()}, nil
}

func (s *Selector) lastN(lastRun string, n int) ([]string, error) {
	resolved, err := s.realpath(lastRun)
	if err != nil {
		return nil, &ConfigurationError{Msg: "cannot resolve " + lastRun, Err: err}
	}
	dir := filepath.Dir(resolved)
	index, err := ParseIndex(filepath.Base(resolved))
	if err != nil {
		return nil, err
	}

	var ret []string
	for i := 0; i < n && index-i >= 0; i++ {
		candidate := filepath.Join(dir, DirName(index-i))
		ok, err := afero.Exists(s.fs, candidate)
		if err != nil {
			return nil, err
		}
		if !ok {
			level.Debug(s.logger).Log("msg", "skipping missing output directory", "dir", candidate)
			continue
		}
		ret = append(ret, candidate)
	}
	return ret, nil
}

// DirName returns the name of the output directory with the given index.
func DirName(index int) string {
	return fmt.Sprintf("%s-%d", OutputDirPrefix, index)
}

// ParseIndex extracts the index from an output directory name of the form
// <prefix>-<prefix>-<index>.
func ParseIndex(base string) (int, error) {
	parts := strings.Split(base, "-")
	if len(parts) != 3 {
		return 0, &ConfigurationError{Msg: fmt.Sprintf("output directory %q does not match %s-<index>", base, OutputDirPrefix)}
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil || index < 0 {
		return 0, &ConfigurationError{Msg: fmt.Sprintf("output directory %q has an invalid index", base), Err: err}
	}
	return index, nil
}
