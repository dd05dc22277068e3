// Package lcov reads and writes the line coverage tracefile format
// understood by lcov and genhtml.
//
// A tracefile is a sequence of records, one per source file:
//
//	TN:
//	SF:/abs/path/file.c
//	DA:10,2
//	DA:11,0
//	LH:1
//	LF:2
//	end_of_record
package lcov

import (
	"bufio"
	"io"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/s2e/lcov/pkg/coverage"
)

// FileStats are the totals written for one source file.
type FileStats struct {
	File       string
	LinesFound int
	LinesHit   int
}

// Stats describes a written tracefile.
type Stats struct {
	Files   []FileStats
	Skipped []string
}

func (s Stats) LinesFound() int {
	n := 0
	for _, f := range s.Files {
		n += f.LinesFound
	}
	return n
}

func (s Stats) LinesHit() int {
	n := 0
	for _, f := range s.Files {
		n += f.LinesHit
	}
	return n
}

type Writer struct {
	logger log.Logger
	fs     afero.Fs
}

func NewWriter(logger log.Logger, fs afero.Fs) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{logger: logger, fs: fs}
}

// Write stores cov as a tracefile at path.
//
// With skipMissingFiles set, records for source files that do not exist
// are left out. genhtml refuses to render tracefiles that reference
// missing sources, while other consumers of the raw tracefile tolerate
// them.
func (w *Writer) Write(path string, cov coverage.FileLineCoverage, skipMissingFiles bool) (stats Stats, err error) {
	level.Info(w.logger).Log("msg", "writing line coverage", "path", path)

	f, err := w.fs.Create(path)
	if err != nil {
		return Stats{}, errors.Wrap(err, "create tracefile")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close tracefile")
		}
	}()

	stats, err = w.Encode(f, cov, skipMissingFiles)
	if err != nil {
		return stats, errors.Wrapf(err, "write %s", path)
	}
	return stats, nil
}

// Encode writes the records of cov to out, files in lexical order and
// lines ascending.
func (w *Writer) Encode(out io.Writer, cov coverage.FileLineCoverage, skipMissingFiles bool) (Stats, error) {
	var stats Stats
	bw := bufio.NewWriter(out)
	buf := make([]byte, 0, 64)

	for _, src := range cov.Files() {
		if skipMissingFiles {
			exists, err := afero.Exists(w.fs, src)
			if err != nil {
				return stats, err
			}
			if !exists {
				level.Warn(w.logger).Log("msg", "source file does not exist, skipping", "file", src)
				stats.Skipped = append(stats.Skipped, src)
				continue
			}
		}
		level.Debug(w.logger).Log("msg", "writing source file record", "file", src)

		fst := FileStats{File: src}
		bw.WriteString("TN:\nSF:")
		bw.WriteString(src)
		bw.WriteByte('\n')
		lines := cov[src]
		for _, line := range cov.Lines(src) {
			count := lines[line]
			buf = append(buf[:0], "DA:"...)
			buf = strconv.AppendInt(buf, int64(line), 10)
			buf = append(buf, ',')
			buf = strconv.AppendUint(buf, count, 10)
			buf = append(buf, '\n')
			bw.Write(buf)

			if count > 0 {
				fst.LinesHit++
			}
			fst.LinesFound++
		}
		buf = append(buf[:0], "LH:"...)
		buf = strconv.AppendInt(buf, int64(fst.LinesHit), 10)
		buf = append(buf, "\nLF:"...)
		buf = strconv.AppendInt(buf, int64(fst.LinesFound), 10)
		buf = append(buf, "\nend_of_record\n"...)
		bw.Write(buf)

		stats.Files = append(stats.Files, fst)
	}
	if len(stats.Files) == 0 {
		// lcov's own header, so the tracefile is never empty
		bw.WriteString("TN:\n")
	}
	return stats, bw.Flush()
}
