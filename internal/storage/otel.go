package storage

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/pianista215/mam-acars/internal/storage"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
