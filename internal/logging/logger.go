// Package logging provides the pipeline's leveled, phase-bracketed
// logger. Every line goes to the console and is teed into the run log
// file so the full loop execution is reviewable after the fact.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures a Logger.
type Options struct {
	// LogFile is the run log path. Empty disables the file sink.
	LogFile string
	// JSONMode switches the output to JSON Lines. Defaults to the
	// LOG_FORMAT=json environment variable when constructed via New.
	JSONMode bool
}

// Logger writes leveled pipeline events to the console and the run log.
// The run log is multi-writer (orchestrator plus parallel gates), so
// the file sink is wrapped in a lock and raw appends go through the
// same lock to keep lines whole.
type Logger struct {
	zap   *zap.Logger
	file  zapcore.WriteSyncer // locked; nil when no file sink
	start time.Time
}

// New creates a Logger. JSON mode is taken from opts.JSONMode or, when
// unset, from LOG_FORMAT=json. The log file's parent directory is
// created if needed.
func New(opts Options) (*Logger, error) {
	jsonMode := opts.JSONMode || strings.EqualFold(os.Getenv("LOG_FORMAT"), "json")

	var fileWS zapcore.WriteSyncer
	if opts.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		fileWS = zapcore.Lock(zapcore.AddSync(f))
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	if fileWS != nil {
		sinks = append(sinks, fileWS)
	}

	core := zapcore.NewCore(
		newEncoder(jsonMode),
		zapcore.NewMultiWriteSyncer(sinks...),
		zapcore.InfoLevel,
	)

	return &Logger{
		zap:   zap.New(core),
		file:  fileWS,
		start: time.Now(),
	}, nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), start: time.Now()}
}

func newEncoder(jsonMode bool) zapcore.Encoder {
	if jsonMode {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.MessageKey = "msg"
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.LevelKey = "" // text mode shows only timestamp and message
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + t.Format("15:04:05") + "]")
	}
	cfg.ConsoleSeparator = " "
	return zapcore.NewConsoleEncoder(cfg)
}

func (l *Logger) elapsed() zap.Field {
	return zap.Float64("elapsed_s", time.Since(l.start).Round(10*time.Millisecond).Seconds())
}

// Info logs an informational pipeline event.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, append(fields, l.elapsed())...)
}

// Warn logs a recoverable problem (retry, shutdown request).
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, append(fields, l.elapsed())...)
}

// Error logs a run-ending condition.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, append(fields, l.elapsed())...)
}

// PhaseStart brackets the beginning of a named pipeline phase.
func (l *Logger) PhaseStart(phase string, iteration int) {
	l.Info(fmt.Sprintf("[%s] Started", phase),
		zap.String("phase", phase),
		zap.String("event", "phase_start"),
		zap.Int("iteration", iteration),
	)
}

// PhaseEnd brackets the end of a named phase with its result.
func (l *Logger) PhaseEnd(phase, result string, iteration int) {
	l.Info(fmt.Sprintf("[%s] %s", phase, strings.ToUpper(result)),
		zap.String("phase", phase),
		zap.String("event", "phase_end"),
		zap.String("result", result),
		zap.Int("iteration", iteration),
	)
}

// Raw appends text verbatim to the run log file only, serialized with
// the structured writes. Used for agent transcripts.
func (l *Logger) Raw(text string) error {
	if l.file == nil {
		return nil
	}
	if _, err := l.file.Write([]byte(text)); err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() {
	_ = l.zap.Sync()
}
