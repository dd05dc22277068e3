// Package symbols maps instruction addresses of a module to source lines
// using the DWARF line tables of the module's binary.
package symbols

import (
	"bytes"
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/s2e/lcov/pkg/coverage"
	"github.com/s2e/lcov/pkg/decompress"
)

// ErrModuleNotFound is returned when no binary matches a module path.
var ErrModuleNotFound = errors.New("module binary not found")

const defaultCacheSize = 16

type Config struct {
	SearchPaths []string `yaml:"search_paths"`
	CacheSize   int      `yaml:"cache_size"`
}

// Manager resolves module paths, as recorded by S2E inside the guest, to
// binaries on the host and translates their address coverage to lines.
type Manager struct {
	logger      log.Logger
	fs          afero.Fs
	searchPaths []string
	tables      *lru.Cache[string, *LineTable]
}

func NewManager(logger log.Logger, fs afero.Fs, cfg Config) (*Manager, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	tables, err := lru.New[string, *LineTable](size)
	if err != nil {
		return nil, err
	}
	return &Manager{
		logger:      logger,
		fs:          fs,
		searchPaths: lo.Uniq(lo.Compact(cfg.SearchPaths)),
		tables:      tables,
	}, nil
}

// Locate returns the host path of the binary for modulePath. The module
// path itself is tried first, then for every search path in order
// <dir>/<basename>, <dir>/<basename>.debug and <dir>/<modulePath>.
func (m *Manager) Locate(modulePath string) (string, error) {
	candidates := []string{modulePath}
	base := filepath.Base(modulePath)
	for _, dir := range m.searchPaths {
		candidates = append(candidates,
			filepath.Join(dir, base),
			filepath.Join(dir, base+".debug"),
			filepath.Join(dir, modulePath),
		)
	}
	for _, c := range candidates {
		fi, err := m.fs.Stat(c)
		if err == nil && !fi.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrModuleNotFound, modulePath)
}

// LineTable returns the parsed line table of the binary at path.
func (m *Manager) LineTable(path string) (*LineTable, error) {
	if lt, ok := m.tables.Get(path); ok {
		return lt, nil
	}
	data, err := decompress.ReadFile(m.fs, path)
	if err != nil {
		return nil, err
	}
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse ELF file %s: %w", path, err)
	}
	defer f.Close()

	lt, err := LineTableFromELF(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	level.Debug(m.logger).Log("msg", "loaded line table", "binary", path, "rows", len(lt.Rows))
	m.tables.Add(path, lt)
	return lt, nil
}

// Coverage translates the address counts of a module into per-line counts.
//
// Every line the line table knows of is reported, with a zero count when
// none of its addresses was executed. A line's count is the sum of the
// counts of all its addresses. With onlyCoveredFiles set, files without
// any executed line are dropped.
func (m *Manager) Coverage(ctx context.Context, modulePath string, addrs coverage.AddressCount, onlyCoveredFiles bool) (coverage.FileLineCoverage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := m.Locate(modulePath)
	if err != nil {
		return nil, err
	}
	lt, err := m.LineTable(path)
	if err != nil {
		return nil, err
	}

	cov := make(coverage.FileLineCoverage)
	for _, row := range lt.Rows {
		cov.Add(row.File, row.Line, addrs[row.Address])
	}
	if onlyCoveredFiles {
		cov.DropUncoveredFiles()
	}
	level.Debug(m.logger).Log("msg", "mapped module coverage", "module", modulePath, "binary", path, "files", len(cov))
	return cov, nil
}
