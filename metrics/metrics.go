// Package metrics wires operational counters for the provisioning core onto
// an OpenTelemetry meter provider exported as Prometheus, grounded on the
// teacher's own metrics.go (same exporter/provider construction), extended
// with the download/resolve/compress/ledger counters this domain needs.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics bundles every counter/histogram the core's engines increment.
type Metrics struct {
	DownloadsTotal        metric.Int64Counter
	DownloadedBytesTotal  metric.Int64Counter
	DownloadFailuresTotal metric.Int64Counter
	HashFailuresTotal     metric.Int64Counter

	ResolutionsTotal       metric.Int64Counter
	ConflictsDetectedTotal metric.Int64Counter
	CyclesDetectedTotal    metric.Int64Counter

	CompressionsTotal    metric.Int64Counter
	BytesSavedTotal      metric.Int64Counter

	LedgerWritesTotal metric.Int64Counter
	LedgerErrorsTotal metric.Int64Counter
}

// New constructs a Prometheus-backed OTel meter provider and registers
// every counter the core's engines report against, exactly as the teacher's
// own metrics.New does for its upload/download/access-log counters.
func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("metrics: creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/a-h/provision")

	counters := []struct {
		name string
		desc string
		dst  *metric.Int64Counter
	}{
		{"downloads_total", "Total number of download attempts completed", &m.DownloadsTotal},
		{"downloaded_bytes_total", "Total bytes fetched by the download engine", &m.DownloadedBytesTotal},
		{"download_failures_total", "Total number of downloads that exhausted retries", &m.DownloadFailuresTotal},
		{"hash_verification_failures_total", "Total number of SHA-256 mismatches detected", &m.HashFailuresTotal},
		{"resolutions_total", "Total number of dependency resolution passes run", &m.ResolutionsTotal},
		{"conflicts_detected_total", "Total number of version conflicts detected by the resolver", &m.ConflictsDetectedTotal},
		{"cycles_detected_total", "Total number of circular dependencies detected by the resolver", &m.CyclesDetectedTotal},
		{"compressions_total", "Total number of files compressed by the compression engine", &m.CompressionsTotal},
		{"bytes_saved_total", "Total bytes reclaimed by compression", &m.BytesSavedTotal},
		{"ledger_writes_total", "Total number of operation records persisted to the ledger", &m.LedgerWritesTotal},
		{"ledger_errors_total", "Total number of durable-store write failures in the ledger", &m.LedgerErrorsTotal},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return Metrics{}, fmt.Errorf("metrics: creating %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	return m, nil
}

// ListenAndServe exposes the Prometheus scrape endpoint, matching the
// teacher's own metrics.ListenAndServe.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

func (m Metrics) IncrementDownload(ctx context.Context, component string, bytes int64, failed bool) {
	if m.DownloadsTotal != nil {
		m.DownloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
	}
	if !failed && m.DownloadedBytesTotal != nil {
		m.DownloadedBytesTotal.Add(ctx, bytes, metric.WithAttributes(attribute.String("component", component)))
	}
	if failed && m.DownloadFailuresTotal != nil {
		m.DownloadFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
	}
}

func (m Metrics) IncrementHashFailure(ctx context.Context, component string) {
	if m.HashFailuresTotal == nil {
		return
	}
	m.HashFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
}

func (m Metrics) IncrementResolution(ctx context.Context, conflicts, cycles int) {
	if m.ResolutionsTotal != nil {
		m.ResolutionsTotal.Add(ctx, 1)
	}
	if conflicts > 0 && m.ConflictsDetectedTotal != nil {
		m.ConflictsDetectedTotal.Add(ctx, int64(conflicts))
	}
	if cycles > 0 && m.CyclesDetectedTotal != nil {
		m.CyclesDetectedTotal.Add(ctx, int64(cycles))
	}
}

func (m Metrics) IncrementCompression(ctx context.Context, algorithm string, bytesSaved int64) {
	if m.CompressionsTotal != nil {
		m.CompressionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("algorithm", algorithm)))
	}
	if bytesSaved > 0 && m.BytesSavedTotal != nil {
		m.BytesSavedTotal.Add(ctx, bytesSaved, metric.WithAttributes(attribute.String("algorithm", algorithm)))
	}
}

func (m Metrics) IncrementLedgerWrite(ctx context.Context, failed bool) {
	if m.LedgerWritesTotal != nil {
		m.LedgerWritesTotal.Add(ctx, 1)
	}
	if failed && m.LedgerErrorsTotal != nil {
		m.LedgerErrorsTotal.Add(ctx, 1)
	}
}
