package log

import (
	"bytes"
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes structured JSON logs to stderr.
//
// Records below the configured level are dropped, unless the logger's
// subsystem is enabled, in which case every record is written. Enabling a
// subsystem also enables its children, such as enabling 'node' enables
// 'node.peer'.
type Logger interface {
	Subsystem() string
	// WithSubsystem creates a new logger with the given subsystem.
	WithSubsystem(s string) Logger
	With(fields ...zap.Field) Logger
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Sync() error
	// StdLogger returns a standard library log.Logger that writes records
	// with the given level.
	StdLogger(level zapcore.Level) *stdlog.Logger
}

type logger struct {
	// core writes every level. Filtering happens in check so enabled
	// subsystems can bypass the level.
	core  zapcore.Core
	level zapcore.Level

	subsystem         string
	subsystemEnabled  bool
	enabledSubsystems []string

	errorOutput zapcore.WriteSyncer
}

// NewLogger creates a logger writing to stderr, filtering using the given
// log level and enabled subsystems.
func NewLogger(lvl string, enabledSubsystems []string) (Logger, error) {
	sink, _, err := zap.Open("stderr")
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}
	return newLogger(lvl, enabledSubsystems, sink)
}

func newLogger(
	lvl string,
	enabledSubsystems []string,
	sink zapcore.WriteSyncer,
) (*logger, error) {
	level, err := zapLevelFromString(lvl)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	// The logger name is used as the subsystem.
	encoderConfig.NameKey = "subsystem"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(
		"2006-01-02T15:04:05.999Z07:00",
	)

	return &logger{
		core: zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			sink,
			zapcore.DebugLevel,
		),
		level:             level,
		subsystem:         "main",
		subsystemEnabled:  subsystemMatch("main", enabledSubsystems),
		enabledSubsystems: enabledSubsystems,
		errorOutput:       zapcore.Lock(os.Stderr),
	}, nil
}

func (l *logger) Subsystem() string {
	return l.subsystem
}

func (l *logger) WithSubsystem(s string) Logger {
	if s == l.subsystem {
		return l
	}

	clone := *l
	clone.subsystem = s
	clone.subsystemEnabled = subsystemMatch(s, l.enabledSubsystems)
	return &clone
}

func (l *logger) With(fields ...zap.Field) Logger {
	if len(fields) == 0 {
		return l
	}
	clone := *l
	clone.core = l.core.With(fields)
	return &clone
}

func (l *logger) Debug(msg string, fields ...zap.Field) {
	l.write(zapcore.DebugLevel, msg, fields)
}

func (l *logger) Info(msg string, fields ...zap.Field) {
	l.write(zapcore.InfoLevel, msg, fields)
}

func (l *logger) Warn(msg string, fields ...zap.Field) {
	l.write(zapcore.WarnLevel, msg, fields)
}

func (l *logger) Error(msg string, fields ...zap.Field) {
	l.write(zapcore.ErrorLevel, msg, fields)
}

func (l *logger) Sync() error {
	return l.core.Sync()
}

func (l *logger) StdLogger(level zapcore.Level) *stdlog.Logger {
	return stdlog.New(&writer{
		logger: l,
		level:  level,
	}, "", 0)
}

func (l *logger) write(lvl zapcore.Level, msg string, fields []zap.Field) {
	if !l.subsystemEnabled && lvl < l.level {
		return
	}

	ent := zapcore.Entry{
		LoggerName: l.subsystem,
		Time:       time.Now(),
		Level:      lvl,
		Message:    msg,
	}
	ce := l.core.Check(ent, nil)
	if ce == nil {
		return
	}
	ce.ErrorOutput = l.errorOutput
	ce.Write(fields...)
}

// writer adapts a logger to io.Writer for the standard library logger.
type writer struct {
	logger *logger
	level  zapcore.Level
}

func (w *writer) Write(p []byte) (int, error) {
	w.logger.write(w.level, string(bytes.TrimSpace(p)), nil)
	return len(p), nil
}

type nopLogger struct {
}

func NewNopLogger() Logger {
	return &nopLogger{}
}

func (l *nopLogger) Subsystem() string {
	return ""
}

func (l *nopLogger) WithSubsystem(_ string) Logger {
	return l
}

func (l *nopLogger) With(_ ...zap.Field) Logger {
	return l
}

func (l *nopLogger) Debug(_ string, _ ...zap.Field) {
}

func (l *nopLogger) Info(_ string, _ ...zap.Field) {
}

func (l *nopLogger) Warn(_ string, _ ...zap.Field) {
}

func (l *nopLogger) Error(_ string, _ ...zap.Field) {
}

func (l *nopLogger) Sync() error {
	return nil
}

func (l *nopLogger) StdLogger(_ zapcore.Level) *stdlog.Logger {
	return zap.NewStdLog(zap.NewNop())
}

// subsystemMatch returns whether the subsystem, or one of its parents, is
// enabled.
func subsystemMatch(subsystem string, enabled []string) bool {
	for _, s := range enabled {
		if subsystem == s || strings.HasPrefix(subsystem, s+".") {
			return true
		}
	}
	return false
}

func zapLevelFromString(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zap.DebugLevel, nil
	case "info":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zapcore.Level(0), fmt.Errorf("unsupported level: %s", s)
	}
}
