// Package auditlog writes one JSON line per control-write audit record
// (spec.md §6), generalized from the teacher's internal/security.FileAuditLogger:
// same zap.Config/zapcore.EncoderConfig JSON shape, but logging
// *aasmodel.AuditEntry records for OPC UA writes instead of the teacher's
// authentication/authorization events.
package auditlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
)

// Logger appends AuditEntry records to a JSON-lines file.
type Logger struct {
	logger *zap.Logger
	mu     sync.Mutex
}

// New builds a Logger writing to path, creating its parent directory if
// necessary. Passing "-" writes to stderr instead of a file, for tests and
// local runs.
func New(path string) (*Logger, error) {
	outputPath := path
	if path != "-" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("auditlog: create directory: %w", err)
			}
		}
	} else {
		outputPath = "stderr"
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			MessageKey:     "msg",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
		},
		OutputPaths:      []string{outputPath},
		ErrorOutputPaths: []string{"stderr"},
	}

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("auditlog: build logger: %w", err)
	}

	return &Logger{logger: zapLogger}, nil
}

// NewWithZap wraps an already-constructed zap logger, for callers (such as
// tests) that want to observe audit output through a zaptest/observer core.
func NewWithZap(zapLogger *zap.Logger) *Logger {
	return &Logger{logger: zapLogger}
}

// LogWrite records one control-write audit entry.
func (l *Logger) LogWrite(entry aasmodel.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := []zap.Field{
		zap.Time("audit_timestamp", entry.Timestamp),
		zap.String("event_type", entry.EventType),
		zap.String("node_id", entry.NodeID),
		zap.String("user_id", entry.UserID),
		zap.Any("previous_value", entry.PreviousValue),
		zap.Any("new_value", entry.NewValue),
	}
	if entry.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", entry.CorrelationID))
	}
	l.logger.Info("control write", fields...)
	return nil
}

// Close flushes and releases the underlying logger.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logger.Sync()
}
