package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an http.Handler exposing the collector's registry in the
// Prometheus exposition format, for the optional `run --metrics-addr`
// companion feature (SPEC_FULL.md §5).
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
