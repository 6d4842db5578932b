// Package logging sets up the application-wide zerolog logger: console plus a
// per-session log file, optionally mirrored to a Graylog GELF endpoint.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Manager owns the log sinks opened for the session.
type Manager struct {
	Logger zerolog.Logger

	file       *os.File
	gelfWriter *gelf.Writer
}

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, appName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", appName, sessionStart.Format("20060102_150405")),
	)
}

// NewManager opens the session log file and assembles the multi-level writer.
// Settings come from viper (logLevel, logsDir, graylog.*); a Graylog endpoint
// that cannot be reached is logged and skipped, never fatal.
func NewManager(appName string) (*Manager, error) {
	zerolog.SetGlobalLevel(parseLevel(viper.GetString("logLevel")))
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}

	m := &Manager{}

	file, err := os.Create(LogFilePath(logsDir, appName, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}
	m.file = file

	writers := []io.Writer{
		// console format with colors to console
		zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		},
		// console format without colors to file
		zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		},
	}

	if viper.GetBool("graylog.enabled") {
		gw, err := gelf.NewWriter(viper.GetString("graylog.address"))
		if err == nil {
			m.gelfWriter = gw
			writers = append(writers, gw)
		}
	}

	mlw := zerolog.MultiLevelWriter(writers...)
	m.Logger = zerolog.New(mlw).With().Timestamp().Str("app", appName).Logger()

	if viper.GetBool("graylog.enabled") && m.gelfWriter == nil {
		m.Logger.Warn().Str("address", viper.GetString("graylog.address")).
			Msg("Graylog endpoint unreachable, GELF output disabled")
	}

	m.Logger.Info().Str("loglevel", zerolog.GlobalLevel().String()).Msg("Logging set up")
	return m, nil
}

// Close flushes and releases the session sinks.
func (m *Manager) Close() {
	if m.gelfWriter != nil {
		m.gelfWriter.Close()
	}
	if m.file != nil {
		m.file.Close()
	}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
