package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Registry is the process-wide Prometheus registry. OpenTelemetry
// instruments created through its MeterProvider are exported into the same
// registry, so a single scrape returns both.
type Registry struct {
	registry      *prometheus.Registry
	meterProvider *sdkmetric.MeterProvider
}

// NewRegistry creates a registry with the Go runtime and process collectors
// and an OpenTelemetry meter provider bridged into it.
func NewRegistry() (*Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return &Registry{
		registry:      reg,
		meterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
	}, nil
}

// Registerer returns the registry for native Prometheus collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer returns the registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// MeterProvider returns the OpenTelemetry meter provider.
func (r *Registry) MeterProvider() metric.MeterProvider {
	return r.meterProvider
}

// InstallGlobal makes the meter provider the OpenTelemetry global.
func (r *Registry) InstallGlobal() {
	otel.SetMeterProvider(r.meterProvider)
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Shutdown stops the meter provider.
func (r *Registry) Shutdown(ctx context.Context) error {
	return r.meterProvider.Shutdown(ctx)
}
