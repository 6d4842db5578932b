// Package metrics ships recorder performance data to InfluxDB. Metrics are
// best-effort: a missing or unreachable InfluxDB never affects recording.
package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	Client  influxdb2.Client
	Writer  influxdb2_api.WriteAPI
	IsValid bool
	Logger  zerolog.Logger
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{Logger: log}
}

// Connect establishes a connection to InfluxDB. A disabled or unreachable
// InfluxDB leaves the manager in the invalid state, where writes are dropped.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		m.Logger.Debug().Msg("InfluxDB disabled, metrics dropped")
		return nil
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())
	if err != nil || !running {
		m.Logger.Warn().Err(err).Msg("InfluxDB unreachable, metrics dropped")
		return nil
	}

	m.Writer = m.Client.WriteAPI(viper.GetString("influx.org"), viper.GetString("influx.bucket"))
	errorsCh := m.Writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Msg("Error sending data to InfluxDB")
		}
	}()

	m.IsValid = true
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

// WritePoint queues a point for the write API. Dropped when invalid.
func (m *Manager) WritePoint(point *influxdb2_write.Point) {
	if !m.IsValid {
		return
	}
	m.Writer.WritePoint(point)
}

// ObserveFlush implements storage.FlushObserver: one point per flush attempt.
func (m *Manager) ObserveFlush(events int, d time.Duration, err error) {
	point := influxdb2_write.NewPointWithMeasurement("store_flush").
		AddField("events", events).
		AddField("duration_ms", d.Milliseconds()).
		AddField("failed", err != nil).
		SetTime(time.Now())
	m.WritePoint(point)
}

// Close flushes pending writes and shuts the client down.
func (m *Manager) Close() {
	if m.IsValid {
		m.Writer.Flush()
		m.Client.Close()
	}
}
