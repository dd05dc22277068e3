package symbols

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
)

// ErrNoDebugInfo is returned for binaries without DWARF line information.
var ErrNoDebugInfo = errors.New("no debug information")

// Row is one entry of a DWARF line program.
type Row struct {
	Address uint64
	File    string
	Line    int
}

// LineTable holds the line program rows of every compilation unit of a
// binary, sorted by address.
type LineTable struct {
	Rows []Row
}

// LineTableFromELF reads the line programs of f.
func LineTableFromELF(f *elf.File) (*LineTable, error) {
	if f.Section(".debug_info") == nil || f.Section(".debug_line") == nil {
		return nil, ErrNoDebugInfo
	}
	d, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("load dwarf: %w", err)
	}
	return NewLineTable(d)
}

// NewLineTable collects the rows of all compilation units. End of sequence
// rows and rows without a line are dropped. Relative file names are
// resolved against the compilation directory of their unit.
func NewLineTable(d *dwarf.Data) (*LineTable, error) {
	lt := &LineTable{}
	r := d.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("read compilation unit: %w", err)
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		compDir, _ := cu.Val(dwarf.AttrCompDir).(string)
		if err := lt.addUnit(d, cu, compDir); err != nil {
			return nil, err
		}
		r.SkipChildren()
	}
	sort.SliceStable(lt.Rows, func(i, j int) bool {
		return lt.Rows[i].Address < lt.Rows[j].Address
	})
	return lt, nil
}

func (lt *LineTable) addUnit(d *dwarf.Data, cu *dwarf.Entry, compDir string) error {
	lr, err := d.LineReader(cu)
	if err != nil {
		return fmt.Errorf("create line reader: %w", err)
	}
	if lr == nil {
		return nil
	}
	names := make(map[*dwarf.LineFile]string)
	for {
		var entry dwarf.LineEntry
		if err := lr.Next(&entry); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read line entry: %w", err)
		}
		if entry.EndSequence || entry.File == nil || entry.Line <= 0 {
			continue
		}
		name, ok := names[entry.File]
		if !ok {
			name = entry.File.Name
			if !filepath.IsAbs(name) && compDir != "" {
				name = filepath.Join(compDir, name)
			}
			name = filepath.Clean(name)
			names[entry.File] = name
		}
		lt.Rows = append(lt.Rows, Row{Address: entry.Address, File: name, Line: entry.Line})
	}
}

// Files returns the distinct source files referenced by the table.
func (lt *LineTable) Files() []string {
	seen := make(map[string]struct{})
	var files []string
	for _, r := range lt.Rows {
		if _, ok := seen[r.File]; ok {
			continue
		}
		seen[r.File] = struct{}{}
		files = append(files, r.File)
	}
	sort.Strings(files)
	return files
}
