package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/pipescope/internal/errors"
)

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// HandlerFor returns an HTTP handler for a specific registry
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// for node_exporter's textfile collector or a CI artifact
func WriteTextfile(reg prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write metrics to "+path, err)
	}
	return nil
}
