package logger

import (
	stdlog "log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a logger
type Logger struct {
	*zap.SugaredLogger
}

// New creates a new logger that writes JSON to stdout, and errors to stderr
func New(loglevel zapcore.Level) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	// Log errors to stderr
	stderrLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= loglevel && lvl >= zapcore.ErrorLevel
	})

	stdoutLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= loglevel && lvl < zapcore.ErrorLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), stderrLevel),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), stdoutLevel),
	)

	log := zap.New(core, zap.AddCaller())

	// Redirect stdlib log package to zap
	_, _ = zap.RedirectStdLogAt(log, zapcore.ErrorLevel)

	return &Logger{
		log.Sugar(),
	}
}

// With returns a child logger that adds the given key-value pairs to every entry
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		l.SugaredLogger.With(keysAndValues...),
	}
}

// NewHTTPErrorLog returns a stdlib logger for http.Server that logs through zap
func NewHTTPErrorLog(l *Logger) *stdlog.Logger {
	log, err := zap.NewStdLogAt(l.Desugar(), zapcore.WarnLevel)
	if err != nil {
		return stdlog.New(os.Stderr, "", 0)
	}

	return log
}
