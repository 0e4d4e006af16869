package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/parcelbay/locker-core/internal/infrastructure/config"
)

// Logger wraps slog.Logger for Locker Core services.
//
// Every log line carries the service name and build version as default
// attributes, and subsystems attach a component attribute via Component
// so gateway, delivery, and API output can be filtered apart in
// aggregated logs.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml.
//
// Format selects the handler: "text" for development consoles, anything
// else gets JSON for log shippers. Output is "stderr" or "stdout"
// (default). Unrecognised levels fall back to info rather than failing
// startup; logging misconfiguration should never keep cabinets offline.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "lockercore"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger carrying additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged with a component attribute.
// Subsystem loggers handed to the gateway, sweep, and API are created
// through this so the attribute name stays consistent.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates a stdout JSON logger at info level for use during
// early startup, before config.Load has run. Once configuration is
// loaded it is replaced by a logger built with New.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
