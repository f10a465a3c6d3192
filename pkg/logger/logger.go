// Package logger builds the zap logger shared by the storage engine, the
// edge heap files and the command line tools.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log line.
const ServiceName = "edgeheapdb"

// Config holds all the configuration for the logger.
type Config struct {
	// Level sets the minimum log level (e.g., "debug", "info", "warn", "error").
	Level string `yaml:"level"`
	// Format specifies the log output format ("json" or "console").
	Format string `yaml:"format"`
	// OutputFile is a path, "stdout", "stderr", or "none" to discard logs.
	OutputFile string `yaml:"output_file"`
	// Components overrides Level for named loggers such as "buffer_pool" or
	// "edgeheap". The innermost name segment with an override wins.
	Components map[string]string `yaml:"components"`
}

// New creates the process logger. It's meant to be called once at startup.
func New(config Config) (*zap.Logger, error) {
	if strings.EqualFold(config.OutputFile, "none") {
		return zap.NewNop(), nil
	}

	base, err := parseLevel(config.Level, zap.InfoLevel)
	if err != nil {
		return nil, err
	}
	overrides := make(map[string]zapcore.Level, len(config.Components))
	for name, lvl := range config.Components {
		l, err := parseLevel(lvl, base)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", name, err)
		}
		overrides[name] = l
	}

	writeSyncer, err := getWriteSyncer(config.OutputFile)
	if err != nil {
		return nil, err
	}

	var core zapcore.Core
	if len(overrides) == 0 {
		core = zapcore.NewCore(getEncoder(config.Format), writeSyncer, base)
	} else {
		// The inner core accepts everything; componentCore does the filtering.
		core = &componentCore{
			Core:      zapcore.NewCore(getEncoder(config.Format), writeSyncer, zapcore.DebugLevel),
			base:      base,
			overrides: overrides,
		}
	}

	return zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("service", ServiceName))), nil
}

// parseLevel returns def for an empty string.
func parseLevel(s string, def zapcore.Level) (zapcore.Level, error) {
	if s == "" {
		return def, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return def, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// componentCore picks the minimum level per entry from the logger name.
type componentCore struct {
	zapcore.Core
	base      zapcore.Level
	overrides map[string]zapcore.Level
}

func (c *componentCore) levelFor(loggerName string) zapcore.Level {
	segments := strings.Split(loggerName, ".")
	for i := len(segments) - 1; i >= 0; i-- {
		if l, ok := c.overrides[segments[i]]; ok {
			return l
		}
	}
	return c.base
}

// Enabled reports whether any logger could write at lvl.
func (c *componentCore) Enabled(lvl zapcore.Level) bool {
	if c.base.Enabled(lvl) {
		return true
	}
	for _, l := range c.overrides {
		if l.Enabled(lvl) {
			return true
		}
	}
	return false
}

func (c *componentCore) With(fields []zapcore.Field) zapcore.Core {
	return &componentCore{Core: c.Core.With(fields), base: c.base, overrides: c.overrides}
}

func (c *componentCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.levelFor(ent.LoggerName).Enabled(ent.Level) {
		return ce
	}
	return ce.AddCore(ent, c)
}

func getEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.EqualFold(format, "console") {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func getWriteSyncer(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "stdout", "":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	default:
		file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", outputFile, err)
		}
		return zapcore.AddSync(file), nil
	}
}
