package coverage

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// TraceLoader reads the raw translation block traces of one run.
type TraceLoader interface {
	ListTraceFiles(dir string) ([]string, error)
	Aggregate(files []string) (map[string][]Block, error)
}

// Extractor turns the translation blocks of a run directory into
// per-byte address coverage.
//
// Blocks only tell which code was translated, not how often it ran, so
// every covered byte gets a count of exactly one per run directory. Bytes
// shared by overlapping blocks of the same run are counted once. Counts
// only add up across run directories, through Merge.
type Extractor struct {
	logger log.Logger
	loader TraceLoader
}

func NewExtractor(logger log.Logger, loader TraceLoader) *Extractor {
	return &Extractor{
		logger: logger,
		loader: loader,
	}
}

// Extract folds the coverage found in dir into into and returns it.
// A directory without trace files leaves into unchanged.
func (e *Extractor) Extract(ctx context.Context, dir string, into ModuleCoverage) (ModuleCoverage, error) {
	if into == nil {
		into = make(ModuleCoverage)
	}
	if err := ctx.Err(); err != nil {
		return into, err
	}

	level.Info(e.logger).Log("msg", "generating translation block coverage information", "dir", dir)

	files, err := e.loader.ListTraceFiles(dir)
	if err != nil {
		return into, errors.Wrapf(err, "listing trace files in %s", dir)
	}
	blocks, err := e.loader.Aggregate(files)
	if err != nil {
		return into, errors.Wrapf(err, "aggregating trace files in %s", dir)
	}

	for module, moduleBlocks := range blocks {
		addrs := ExpandBlocks(moduleBlocks)
		level.Debug(e.logger).Log(
			"msg", "extracted module coverage",
			"module", module,
			"blocks", humanize.Comma(int64(len(moduleBlocks))),
			"addresses", humanize.Comma(int64(len(addrs))),
		)
		Merge(into, module, addrs)
	}
	return into, nil
}

// ExpandBlocks returns every byte address covered by blocks with a count
// of one.
func ExpandBlocks(blocks []Block) AddressCount {
	var set RangeSet
	for _, b := range blocks {
		set.Add(b.Start, b.Size)
	}
	return set.AddressCount(1)
}
