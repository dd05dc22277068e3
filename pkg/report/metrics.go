package report

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess         = "success"
	statusResolutionError = "resolution_error"
	statusIOError         = "io_error"
	statusRenderError     = "render_error"
)

type metrics struct {
	modules       *prometheus.CounterVec
	runDirs       prometheus.Gauge
	addresses     prometheus.Gauge
	lines         *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		modules: registerOrGet(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "s2e_lcov_modules_total",
			Help: "Total number of modules processed by status",
		}, []string{"status"})),
		runDirs: registerOrGet(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "s2e_lcov_run_directories",
			Help: "Number of S2E output directories aggregated by the last report",
		})),
		addresses: registerOrGet(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "s2e_lcov_aggregated_addresses",
			Help: "Number of distinct covered addresses over all modules",
		})),
		lines: registerOrGet(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "s2e_lcov_lines_total",
			Help: "Total number of source lines written to tracefiles, found or hit",
		}, []string{"kind"})),
		stageDuration: registerOrGet(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "s2e_lcov_stage_duration_seconds",
			Help:    "Time spent in each stage of the report",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60, 300},
		}, []string{"stage"})),
	}
	return m
}

// registerOrGet registers c with reg and returns it, or the collector
// already registered under the same description.
func registerOrGet[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(T)
		}
		panic(err)
	}
	return c
}

func statusOf(err error) string {
	var (
		resErr    *ResolutionError
		ioErr     *IOError
		renderErr *RenderError
	)
	switch {
	case err == nil:
		return statusSuccess
	case errors.As(err, &resErr):
		return statusResolutionError
	case errors.As(err, &ioErr):
		return statusIOError
	case errors.As(err, &renderErr):
		return statusRenderError
	default:
		return "error"
	}
}
