package telemetry

import (
	"context"

	"github.com/robalyx/chronicle/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
)

// Tracing owns the OpenTelemetry exporter lifecycle.
type Tracing struct {
	enabled bool
}

// StartTracing configures OpenTelemetry export to Uptrace when a DSN is set.
// With no DSN the global no-op tracer provider stays in place.
func StartTracing(serviceType ServiceType, version string, cfg *config.Telemetry) *Tracing {
	if cfg.UptraceDSN == "" {
		return &Tracing{}
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName("chronicle-"+serviceType.String()),
		uptrace.WithServiceVersion(version),
		uptrace.WithDeploymentEnvironment(cfg.Environment),
	)

	return &Tracing{enabled: true}
}

// Enabled reports whether spans are exported.
func (t *Tracing) Enabled() bool {
	return t.enabled
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if !t.enabled {
		return nil
	}

	return uptrace.Shutdown(ctx)
}
