package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/s2e/lcov/pkg/lcov"
)

func summary(ctx context.Context, files []string) error {
	out := output(ctx)
	for _, path := range files {
		if err := summarize(out, path); err != nil {
			return err
		}
	}
	return nil
}

func summarize(out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := lcov.Parse(f)
	if err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	fmt.Fprintln(out, "tracefile:", path)
	printRecords(out, records)
	return nil
}

func printRecords(out io.Writer, records []lcov.Record) {
	var hit, found int
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Source file", "Lines hit", "Lines found", "%"})
	for _, rec := range records {
		hit += rec.LinesHit
		found += rec.LinesFound
		table.Append([]string{
			rec.SourceFile,
			humanize.Comma(int64(rec.LinesHit)),
			humanize.Comma(int64(rec.LinesFound)),
			percent(rec.LinesHit, rec.LinesFound),
		})
	}
	table.SetFooter([]string{
		fmt.Sprintf("%d files", len(records)),
		humanize.Comma(int64(hit)),
		humanize.Comma(int64(found)),
		percent(hit, found),
	})
	table.Render()
}
