package coverage

import (
	"context"
	"errors"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	t.Run("inserts unknown module as is", func(t *testing.T) {
		target := ModuleCoverage{}
		incoming := AddressCount{0x10: 1}
		Merge(target, "/bin/a", incoming)
		require.Equal(t, ModuleCoverage{"/bin/a": {0x10: 1}}, target)
	})

	t.Run("adds counts of known addresses", func(t *testing.T) {
		target := ModuleCoverage{"/bin/a": {0x10: 1, 0x11: 2}}
		Merge(target, "/bin/a", AddressCount{0x11: 3, 0x12: 1})
		require.Equal(t, AddressCount{0x10: 1, 0x11: 5, 0x12: 1}, target["/bin/a"])
	})

	t.Run("other modules are untouched", func(t *testing.T) {
		target := ModuleCoverage{"/bin/a": {0x10: 1}}
		Merge(target, "/lib/b.so", AddressCount{0x10: 7})
		require.Equal(t, AddressCount{0x10: 1}, target["/bin/a"])
		require.Equal(t, AddressCount{0x10: 7}, target["/lib/b.so"])
	})
}

func TestMergeOrderIndependent(t *testing.T) {
	const a, b, c = 0xa, 0xb, 0xc
	first := func() AddressCount { return AddressCount{a: 1, b: 2} }
	second := func() AddressCount { return AddressCount{b: 3, c: 1} }

	forward := ModuleCoverage{}
	Merge(forward, "m", first())
	Merge(forward, "m", second())

	backward := ModuleCoverage{}
	Merge(backward, "m", second())
	Merge(backward, "m", first())

	require.Equal(t, forward, backward)
	require.Equal(t, AddressCount{a: 1, b: 5, c: 1}, forward["m"])
}

func TestMergeNeverDecreases(t *testing.T) {
	target := ModuleCoverage{}
	runs := []AddressCount{
		{1: 1, 2: 1},
		{2: 1, 3: 1},
		{},
		{1: 4},
	}
	prev := map[uint64]uint64{}
	for _, run := range runs {
		Merge(target, "m", run)
		for addr, cnt := range prev {
			assert.GreaterOrEqual(t, target["m"][addr], cnt)
		}
		prev = map[uint64]uint64{}
		for addr, cnt := range target["m"] {
			prev[addr] = cnt
		}
	}
}

func TestExpandBlocks(t *testing.T) {
	for _, tc := range []struct {
		name   string
		blocks []Block
		want   AddressCount
	}{
		{
			name:   "single block",
			blocks: []Block{{Start: 100, Size: 4}},
			want:   AddressCount{100: 1, 101: 1, 102: 1, 103: 1},
		},
		{
			name:   "repeated block collapses to one",
			blocks: []Block{{Start: 100, Size: 4}, {Start: 100, Size: 4}},
			want:   AddressCount{100: 1, 101: 1, 102: 1, 103: 1},
		},
		{
			name:   "overlapping blocks collapse to one",
			blocks: []Block{{Start: 100, Size: 3}, {Start: 102, Size: 2}},
			want:   AddressCount{100: 1, 101: 1, 102: 1, 103: 1},
		},
		{
			name:   "empty block",
			blocks: []Block{{Start: 100, End: 100, Size: 0}},
			want:   AddressCount{},
		},
		{
			name:   "end field is ignored",
			blocks: []Block{{Start: 8, End: 1 << 40, Size: 1}},
			want:   AddressCount{8: 1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := ExpandBlocks(tc.blocks)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("unexpected addresses (-want +got):\n%s", diff)
			}
		})
	}
}

type fakeLoader struct {
	files  map[string][]string
	blocks map[string]map[string][]Block
	err    error
}

func (f *fakeLoader) ListTraceFiles(dir string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.files[dir], nil
}

func (f *fakeLoader) Aggregate(files []string) (map[string][]Block, error) {
	out := map[string][]Block{}
	for _, file := range files {
		for module, blocks := range f.blocks[file] {
			out[module] = append(out[module], blocks...)
		}
	}
	return out, nil
}

func TestExtractor(t *testing.T) {
	loader := &fakeLoader{
		files: map[string][]string{
			"s2e-out-1": {"s2e-out-1/tbcoverage-0.json", "s2e-out-1/tbcoverage-1.json"},
			"s2e-out-2": {"s2e-out-2/tbcoverage-0.json"},
			"empty":     nil,
		},
		blocks: map[string]map[string][]Block{
			"s2e-out-1/tbcoverage-0.json": {"/bin/a": {{Start: 0x10, End: 0x11, Size: 2}}},
			"s2e-out-1/tbcoverage-1.json": {"/bin/a": {{Start: 0x11, End: 0x12, Size: 2}}},
			"s2e-out-2/tbcoverage-0.json": {
				"/bin/a":    {{Start: 0x10, End: 0x10, Size: 1}},
				"/lib/b.so": {{Start: 0x400, End: 0x400, Size: 1}},
			},
		},
	}
	e := NewExtractor(log.NewNopLogger(), loader)
	ctx := context.Background()

	cov, err := e.Extract(ctx, "empty", nil)
	require.NoError(t, err)
	require.Empty(t, cov)

	cov, err = e.Extract(ctx, "s2e-out-1", cov)
	require.NoError(t, err)
	// 0x11 is shared by both blocks of the same run
	require.Equal(t, AddressCount{0x10: 1, 0x11: 1, 0x12: 1}, cov["/bin/a"])

	cov, err = e.Extract(ctx, "s2e-out-2", cov)
	require.NoError(t, err)
	require.Equal(t, ModuleCoverage{
		"/bin/a":    {0x10: 2, 0x11: 1, 0x12: 1},
		"/lib/b.so": {0x400: 1},
	}, cov)
	require.Equal(t, []string{"/bin/a", "/lib/b.so"}, cov.Modules())
	require.Equal(t, 4, cov.Addresses())
}

func TestExtractorLoaderError(t *testing.T) {
	boom := errors.New("boom")
	e := NewExtractor(log.NewNopLogger(), &fakeLoader{err: boom})
	into := ModuleCoverage{"/bin/a": {1: 1}}
	got, err := e.Extract(context.Background(), "dir", into)
	require.ErrorIs(t, err, boom)
	require.Equal(t, ModuleCoverage{"/bin/a": {1: 1}}, got)
}

func TestExtractorCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExtractor(log.NewNopLogger(), &fakeLoader{})
	_, err := e.Extract(ctx, "dir", nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileLineCoverage(t *testing.T) {
	f := FileLineCoverage{}
	f.Add("/b.c", 3, 0)
	f.Add("/a.c", 10, 1)
	f.Add("/a.c", 10, 2)
	f.Add("/a.c", 2, 0)

	require.Equal(t, []string{"/a.c", "/b.c"}, f.Files())
	require.Equal(t, []int{2, 10}, f.Lines("/a.c"))
	require.Equal(t, uint64(3), f["/a.c"][10])

	f.DropUncoveredFiles()
	require.Equal(t, []string{"/a.c"}, f.Files())
}
