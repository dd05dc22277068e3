// Package tbtrace reads the translation block coverage files written by the
// S2E TranslationBlockCoverage plugin into a run's output directory.
//
// Each file is a JSON object mapping a module path to an array of
// [start, end, size] triples:
//
//	{"/usr/bin/target": [[4195552, 4195578, 27], ...]}
//
// Files may be stored gzip or zstd compressed.
package tbtrace

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/regexp"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/s2e/lcov/pkg/coverage"
	"github.com/s2e/lcov/pkg/decompress"
)

var traceFileRe = regexp.MustCompile(`^tbcoverage-.*\.json(\.gz|\.zst)?$`)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Loader implements coverage.TraceLoader on top of a filesystem.
type Loader struct {
	fs     afero.Fs
	logger log.Logger
}

func NewLoader(logger log.Logger, fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs, logger: logger}
}

// IsTraceFile reports whether name looks like a translation block file.
func IsTraceFile(name string) bool {
	return traceFileRe.MatchString(name)
}

// ListTraceFiles returns the translation block files found anywhere under
// dir, sorted by path. Multi-process runs keep one subdirectory per S2E
// instance.
func (l *Loader) ListTraceFiles(dir string) ([]string, error) {
	var files []string
	err := afero.Walk(l.fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || !IsTraceFile(fi.Name()) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if len(files) == 0 {
		level.Warn(l.logger).Log("msg", "no translation block coverage files found", "dir", dir)
	}
	return files, nil
}

// Aggregate concatenates the blocks of every file per module, in file order.
func (l *Loader) Aggregate(files []string) (map[string][]coverage.Block, error) {
	ret := make(map[string][]coverage.Block)
	for _, file := range files {
		parsed, err := l.ReadFile(file)
		if err != nil {
			return nil, err
		}
		for module, blocks := range parsed {
			ret[module] = append(ret[module], blocks...)
		}
	}
	return ret, nil
}

// ReadFile parses a single translation block file.
func (l *Loader) ReadFile(path string) (map[string][]coverage.Block, error) {
	data, err := decompress.ReadFile(l.fs, path)
	if err != nil {
		return nil, err
	}
	blocks, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	level.Debug(l.logger).Log("msg", "read translation block file", "path", path, "modules", len(blocks))
	return blocks, nil
}

// Parse decodes the JSON content of a translation block file.
func Parse(data []byte) (map[string][]coverage.Block, error) {
	var raw map[string][][]uint64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	ret := make(map[string][]coverage.Block, len(raw))
	for module, entries := range raw {
		blocks := make([]coverage.Block, 0, len(entries))
		for i, e := range entries {
			if len(e) != 3 {
				return nil, fmt.Errorf("module %s: entry %d has %d fields, expected 3", module, i, len(e))
			}
			blocks = append(blocks, coverage.Block{Start: e[0], End: e[1], Size: e[2]})
		}
		ret[module] = blocks
	}
	return ret, nil
}
