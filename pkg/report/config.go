package report

import (
	"github.com/s2e/lcov/pkg/genhtml"
	"github.com/s2e/lcov/pkg/runs"
	"github.com/s2e/lcov/pkg/symbols"
)

type Config struct {
	Runs runs.Config `yaml:",inline"`

	// HTMLOutput renders every tracefile with genhtml. Records of missing
	// source files are then left out of the tracefiles.
	HTMLOutput bool `yaml:"html"`
	// OutputDir receives the tracefiles. Defaults to the s2e-last path of
	// the project.
	OutputDir        string `yaml:"lcov_out_dir"`
	OnlyCoveredFiles bool   `yaml:"include_covered_files_only"`

	Symbols symbols.Config `yaml:"symbols"`
	GenHTML genhtml.Config `yaml:",inline"`
}

func (cfg *Config) Validate() error {
	return cfg.Runs.Validate()
}

// OutputPath returns the directory tracefiles are written to.
func (cfg *Config) OutputPath() string {
	if cfg.OutputDir != "" {
		return cfg.OutputDir
	}
	return cfg.Runs.LastRunPath()
}

// SearchPaths returns where module binaries are looked up: the project
// directory first, then the configured symbol search paths.
func (cfg *Config) SearchPaths() []string {
	return append([]string{cfg.Runs.ProjectDir}, cfg.Symbols.SearchPaths...)
}
