package lcov

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record is one source file section of a tracefile.
type Record struct {
	TestName   string
	SourceFile string
	Lines      map[int]uint64
	// LinesHit and LinesFound are the LH/LF values as written in the file.
	LinesHit   int
	LinesFound int
}

// Parse reads every record of a tracefile. Keys other than TN, SF, DA, LH
// and LF are ignored.
func Parse(r io.Reader) ([]Record, error) {
	var (
		records  []Record
		cur      *Record
		testName string
		lineNo   int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if text == "end_of_record" {
			if cur == nil {
				return nil, fmt.Errorf("line %d: end_of_record outside of a record", lineNo)
			}
			records = append(records, *cur)
			cur = nil
			continue
		}
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: malformed entry %q", lineNo, text)
		}
		switch key {
		case "TN":
			testName = value
		case "SF":
			if cur != nil {
				return nil, fmt.Errorf("line %d: SF before end_of_record of %s", lineNo, cur.SourceFile)
			}
			cur = &Record{TestName: testName, SourceFile: value, Lines: map[int]uint64{}}
		case "DA", "LH", "LF":
			if cur == nil {
				return nil, fmt.Errorf("line %d: %s outside of a record", lineNo, key)
			}
			if err := parseEntry(cur, key, value); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, fmt.Errorf("record for %s is missing end_of_record", cur.SourceFile)
	}
	return records, nil
}

func parseEntry(rec *Record, key, value string) error {
	switch key {
	case "DA":
		// DA:<line>,<count>[,<checksum>]
		fields := strings.Split(value, ",")
		if len(fields) < 2 {
			return fmt.Errorf("malformed DA entry %q", value)
		}
		line, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("DA line number: %w", err)
		}
		count, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("DA count: %w", err)
		}
		rec.Lines[line] += count
	case "LH":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("LH: %w", err)
		}
		rec.LinesHit = n
	case "LF":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("LF: %w", err)
		}
		rec.LinesFound = n
	}
	return nil
}
