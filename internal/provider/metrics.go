package provider

import (
	"net/http"
	"time"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/prometheus/client_golang/prometheus"
)

// InstrumentedClient returns an http.Client whose transport records request
// latency and error metrics, labeled by provider.
func InstrumentedClient(provider string, registry prometheus.Registerer) *http.Client {
	m := metrics.NewRequestMetrics(metrics.Options{
		Namespace:   "parking",
		Subsystem:   "monitor",
		ConstLabels: prometheus.Labels{"provider": provider},
	})
	if registry != nil {
		registry.MustRegister(m)
	}
	return &http.Client{
		Transport: roundtripper.New(roundtripper.WithRequestMetrics(m)),
		Timeout:   30 * time.Second,
	}
}
