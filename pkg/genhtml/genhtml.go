// Package genhtml drives lcov's genhtml to render a tracefile as HTML.
package genhtml

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

const DefaultPath = "genhtml"

type Config struct {
	Path      string   `yaml:"genhtml_path"`
	ExtraArgs []string `yaml:"genhtml_args"`
}

// Runner invokes the genhtml executable and waits for it to exit. Its
// output goes to the configured streams, by default those of the current
// process.
type Runner struct {
	logger log.Logger
	cfg    Config
	stdout io.Writer
	stderr io.Writer
}

func New(logger log.Logger, cfg Config) *Runner {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	return &Runner{
		logger: logger,
		cfg:    cfg,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// WithOutput redirects the output of genhtml.
func (r *Runner) WithOutput(stdout, stderr io.Writer) *Runner {
	r.stdout = stdout
	r.stderr = stderr
	return r
}

// IndexPath is the entry page genhtml writes into outDir.
func IndexPath(outDir string) string {
	return filepath.Join(outDir, "index.html")
}

// Render renders infoPath into outDir. A non-zero exit is returned as an
// error carrying the exit code.
func (r *Runner) Render(ctx context.Context, infoPath, outDir string) error {
	args := append([]string{infoPath, "--output-directory", outDir}, r.cfg.ExtraArgs...)
	cmd := exec.CommandContext(ctx, r.cfg.Path, args...)
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	level.Debug(r.logger).Log("msg", "running genhtml", "cmd", r.cfg.Path+" "+strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return errors.Wrapf(err, "%s exited with code %d", r.cfg.Path, exitErr.ExitCode())
		}
		return errors.Wrapf(err, "run %s", r.cfg.Path)
	}
	return nil
}
