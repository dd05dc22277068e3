package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/s2e/lcov/pkg/report"
)

const envPrefix = "S2E_LCOV_"

var cfg struct {
	verbose bool
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = withOutput(ctx, os.Stdout)

	app := kingpin.New(filepath.Base(os.Args[0]), "Generate lcov line coverage reports from S2E translation block traces.").UsageWriter(os.Stdout)
	app.Version(version.Print("s2e-lcov"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)

	lcovCmd := app.Command("lcov", "Generate one lcov tracefile per module covered by the selected runs.").Default()
	lcovParams := addLcovParams(lcovCmd)

	summaryCmd := app.Command("summary", "Print the per-file line coverage of lcov tracefiles.")
	summaryFiles := summaryCmd.Arg("file", "lcov tracefile path").Required().ExistingFiles()

	// parse command line arguments
	parsedCmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// enable verbose logging if requested
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	switch parsedCmd {
	case lcovCmd.FullCommand():
		if err := generate(ctx, lcovParams); err != nil {
			os.Exit(checkError(err))
		}
	case summaryCmd.FullCommand():
		if err := summary(ctx, *summaryFiles); err != nil {
			os.Exit(checkError(err))
		}
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var cfgErr *report.ConfigurationError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}

type contextKey uint8

const (
	contextKeyOutput contextKey = iota
)

func withOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, contextKeyOutput, w)
}

func output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(contextKeyOutput).(io.Writer); ok {
		return w
	}
	return os.Stdout
}
