package tbtrace

import (
	"bytes"
	"testing"

	"github.com/go-kit/log"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/s2e/lcov/pkg/coverage"
)

func TestIsTraceFile(t *testing.T) {
	for name, want := range map[string]bool{
		"tbcoverage-0.json":       true,
		"tbcoverage-12.json.gz":   true,
		"tbcoverage-1.json.zst":   true,
		"tbcoverage-0.json.bak":   false,
		"debug.txt":               false,
		"tbcoverage.json":         false,
		"xtbcoverage-0.json":      false,
		"tbcoverage-0-extra.json": true,
	} {
		require.Equal(t, want, IsTraceFile(name), name)
	}
}

func TestParse(t *testing.T) {
	blocks, err := Parse([]byte(`{
		"/bin/a": [[4195552, 4195578, 27], [18446744073709551600, 18446744073709551610, 11]],
		"/lib/b.so": []
	}`))
	require.NoError(t, err)
	require.Equal(t, map[string][]coverage.Block{
		"/bin/a": {
			{Start: 4195552, End: 4195578, Size: 27},
			{Start: 18446744073709551600, End: 18446744073709551610, Size: 11},
		},
		"/lib/b.so": {},
	}, blocks)

	_, err = Parse([]byte(`{"/bin/a": [[1, 2]]}`))
	require.ErrorContains(t, err, "expected 3")

	_, err = Parse([]byte(`not json`))
	require.Error(t, err)
}

func TestLoader(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/proj/s2e-out-0", 0o755))
	require.NoError(t, fs.MkdirAll("/proj/empty", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/proj/s2e-out-0/tbcoverage-1.json",
		[]byte(`{"/bin/a": [[16, 17, 2]]}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/proj/s2e-out-0/debug.txt", []byte("noise"), 0o644))

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write([]byte(`{"/bin/a": [[8, 9, 1]], "/lib/b.so": [[32, 33, 1]]}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, afero.WriteFile(fs, "/proj/s2e-out-0/tbcoverage-0.json.gz", gz.Bytes(), 0o644))

	l := NewLoader(log.NewNopLogger(), fs)

	files, err := l.ListTraceFiles("/proj/s2e-out-0")
	require.NoError(t, err)
	require.Equal(t, []string{
		"/proj/s2e-out-0/tbcoverage-0.json.gz",
		"/proj/s2e-out-0/tbcoverage-1.json",
	}, files)

	blocks, err := l.Aggregate(files)
	require.NoError(t, err)
	require.Equal(t, map[string][]coverage.Block{
		"/bin/a":    {{Start: 8, End: 9, Size: 1}, {Start: 16, End: 17, Size: 2}},
		"/lib/b.so": {{Start: 32, End: 33, Size: 1}},
	}, blocks)

	files, err = l.ListTraceFiles("/proj/empty")
	require.NoError(t, err)
	require.Empty(t, files)
	blocks, err = l.Aggregate(files)
	require.NoError(t, err)
	require.Empty(t, blocks)

	_, err = l.ListTraceFiles("/proj/missing")
	require.Error(t, err)
}

func TestLoaderInstanceDirectories(t *testing.T) {
	fs := afero.NewMemMapFs()
	for path, content := range map[string]string{
		"/proj/s2e-out-0/0/tbcoverage-0.json": `{"/bin/a": [[16, 17, 2]]}`,
		"/proj/s2e-out-0/1/tbcoverage-0.json": `{"/bin/a": [[8, 8, 1]]}`,
		"/proj/s2e-out-0/1/tbcoverage-1.json": `{"/lib/b.so": [[32, 32, 1]]}`,
		"/proj/s2e-out-0/1/debug.txt":         "noise",
	} {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	l := NewLoader(log.NewNopLogger(), fs)

	files, err := l.ListTraceFiles("/proj/s2e-out-0")
	require.NoError(t, err)
	require.Equal(t, []string{
		"/proj/s2e-out-0/0/tbcoverage-0.json",
		"/proj/s2e-out-0/1/tbcoverage-0.json",
		"/proj/s2e-out-0/1/tbcoverage-1.json",
	}, files)

	blocks, err := l.Aggregate(files)
	require.NoError(t, err)
	require.Equal(t, map[string][]coverage.Block{
		"/bin/a":    {{Start: 16, End: 17, Size: 2}, {Start: 8, End: 8, Size: 1}},
		"/lib/b.so": {{Start: 32, End: 32, Size: 1}},
	}, blocks)
}

func TestLoaderBadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/d/tbcoverage-0.json", []byte(`{`), 0o644))
	l := NewLoader(log.NewNopLogger(), fs)
	_, err := l.Aggregate([]string{"/d/tbcoverage-0.json"})
	require.ErrorContains(t, err, "/d/tbcoverage-0.json")
}
