// Package test holds helpers shared by the tests of this module.
package test

import (
	"strings"
	"testing"

	"github.com/go-kit/log"
)

// NewTestingLogger returns a logger that renders records as logfmt through
// t.Log, so they are only shown for failing or verbose tests.
func NewTestingLogger(t testing.TB) log.Logger {
	return log.NewLogfmtLogger(testWriter{t: t})
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
