// Package logging builds the logr.Logger used across the tool, backed by zap.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is one sink of a logger
type Config struct {
	core    zapcore.Core
	cleanup func() error
	err     error
}

// New creates a logger named service writing to every configured sink.
// With no sinks it discards everything. The returned function flushes
// buffered entries and should run before exit.
func New(service string, configs ...Config) (logr.Logger, func() error) {
	var cores []zapcore.Core
	var cleanupFuncs []func() error

	for _, config := range configs {
		if config.err != nil {
			continue
		}
		cores = append(cores, config.core)
		if config.cleanup != nil {
			cleanupFuncs = append(cleanupFuncs, config.cleanup)
		}
	}
	zapLogger := zap.New(zapcore.NewTee(cores...))
	cleanupFuncs = append(cleanupFuncs, zapLogger.Sync)
	logger := zapr.NewLogger(zapLogger).WithName(service)

	for _, config := range configs {
		if config.err != nil {
			logger.Error(config.err, "error configuring logger")
		}
	}
	return logger, firstErrorFunc(cleanupFuncs...)
}

type sinkConfig struct {
	encoder  zapcore.Encoder
	sink     zapcore.WriteSyncer
	level    zapcore.LevelEnabler
	redactor *Redactor
}

// SinkOption adjusts a sink
type SinkOption func(*sinkConfig)

// WithJSONSink adds a JSON encoded output
func WithJSONSink(sink io.Writer, opts ...SinkOption) Config {
	return newCoreConfig(zapcore.NewJSONEncoder(defaultEncoderConfig()), sink, opts...)
}

// WithConsoleSink adds a human-readable output
func WithConsoleSink(sink io.Writer, opts ...SinkOption) Config {
	return newCoreConfig(zapcore.NewConsoleEncoder(defaultEncoderConfig()), sink, opts...)
}

// WithFormat picks the JSON sink for "json" and the console sink otherwise
func WithFormat(format string, sink io.Writer, opts ...SinkOption) Config {
	if format == "json" {
		return WithJSONSink(sink, opts...)
	}
	return WithConsoleSink(sink, opts...)
}

// WithLevel sets the sink verbosity. Level n enables logger.V(n).
func WithLevel(level int8) SinkOption {
	return func(conf *sinkConfig) {
		// zap levels grow more verbose as they decrease
		conf.level = zap.NewAtomicLevelAt(zapcore.Level(-level))
	}
}

// WithRedactor scrubs registered secrets from messages and string values
func WithRedactor(r *Redactor) SinkOption {
	return func(conf *sinkConfig) { conf.redactor = r }
}

// VerbosityLevel maps the CLI flags to a logr verbosity
func VerbosityLevel(verbose, debug bool) int8 {
	switch {
	case debug:
		return 2
	case verbose:
		return 1
	default:
		return 0
	}
}

func defaultEncoderConfig() zapcore.EncoderConfig {
	conf := zap.NewProductionEncoderConfig()
	conf.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	conf.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if level == zapcore.ErrorLevel {
			enc.AppendString("error")
			return
		}
		enc.AppendString(fmt.Sprintf("info-%d", -int8(level)))
	}
	return conf
}

func newCoreConfig(encoder zapcore.Encoder, sink io.Writer, opts ...SinkOption) Config {
	conf := sinkConfig{
		encoder: encoder,
		sink:    zapcore.Lock(zapcore.AddSync(sink)),
		level:   zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}
	for _, f := range opts {
		f(&conf)
	}
	core := zapcore.NewCore(conf.encoder, conf.sink, conf.level)
	if conf.redactor == nil {
		return Config{core: core}
	}
	return Config{core: newRedactionCore(core, conf.redactor)}
}

// firstErrorFunc runs every function and returns the first error
func firstErrorFunc(fs ...func() error) func() error {
	return func() error {
		var firstErr error
		for _, f := range fs {
			if f == nil {
				continue
			}
			if err := f(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
}
