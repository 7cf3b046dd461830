package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// GetMeterProvider returns the globally registered meter provider. Valid only
// after InitTelemetry has set the global providers.
func GetMeterProvider() metric.MeterProvider { return otel.GetMeterProvider() }
