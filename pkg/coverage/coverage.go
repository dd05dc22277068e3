package coverage

import (
	"sort"
)

// AddressCount maps an instruction address to the number of times it was
// observed.
type AddressCount map[uint64]uint64

// ModuleCoverage maps a module path (binary or shared object) to its
// address counts. It only ever grows while runs are folded into it.
type ModuleCoverage map[string]AddressCount

// FileLineCoverage maps a source file path to line numbers and their
// execution counts.
type FileLineCoverage map[string]map[int]uint64

// Block is one translation block recorded during a run.
// End is carried through from the trace and is not used for expansion.
type Block struct {
	Start uint64
	End   uint64
	Size  uint64
}

// Merge folds incoming into the entry for moduleName. When the module is
// not yet known incoming is stored as is, so callers must not mutate it
// afterwards.
func Merge(target ModuleCoverage, moduleName string, incoming AddressCount) {
	cov, ok := target[moduleName]
	if !ok {
		target[moduleName] = incoming
		return
	}
	for addr, cnt := range incoming {
		cov[addr] += cnt
	}
}

// Modules returns the module paths of c in lexical order.
func (c ModuleCoverage) Modules() []string {
	modules := make([]string, 0, len(c))
	for m := range c {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	return modules
}

// Addresses returns the number of distinct addresses over all modules.
func (c ModuleCoverage) Addresses() int {
	n := 0
	for _, ac := range c {
		n += len(ac)
	}
	return n
}

// Files returns the source files of f in lexical order.
func (f FileLineCoverage) Files() []string {
	files := make([]string, 0, len(f))
	for file := range f {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// Lines returns the line numbers recorded for file in ascending order.
func (f FileLineCoverage) Lines(file string) []int {
	lines := make([]int, 0, len(f[file]))
	for line := range f[file] {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// Add records count for file:line, creating the entry when missing.
// A zero count still marks the line as instrumented.
func (f FileLineCoverage) Add(file string, line int, count uint64) {
	lines, ok := f[file]
	if !ok {
		lines = make(map[int]uint64)
		f[file] = lines
	}
	lines[line] += count
}

// DropUncoveredFiles removes every file none of whose lines was hit.
func (f FileLineCoverage) DropUncoveredFiles() {
	for file, lines := range f {
		covered := false
		for _, cnt := range lines {
			if cnt > 0 {
				covered = true
				break
			}
		}
		if !covered {
			delete(f, file)
		}
	}
}
