package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edgecomet/pdfbatch/internal/common/configtypes"
)

// output is one enabled sink with its own adjustable level
type output struct {
	level      zap.AtomicLevel
	configured string // per-output level from config, empty means global
}

// DynamicLogger wraps zap.Logger with per-output levels that can change at runtime
type DynamicLogger struct {
	*zap.Logger
	console *output
	file    *output
	config  configtypes.LogConfig
}

// NewLogger builds a tee of the enabled console and file outputs
func NewLogger(config configtypes.LogConfig) (*DynamicLogger, error) {
	return build(config, config)
}

// NewLoggerWithStartupOverride starts at INFO when the configured level is quieter,
// so startup lines stay visible. Call SwitchToConfiguredLevel once the service is up.
func NewLoggerWithStartupOverride(config configtypes.LogConfig) (*DynamicLogger, error) {
	if parseLogLevel(config.Level) <= zap.InfoLevel {
		return NewLogger(config)
	}

	startup := config
	startup.Level = configtypes.LogLevelInfo
	if startup.Console.Level == "" {
		startup.Console.Level = configtypes.LogLevelInfo
	}
	if startup.File.Level == "" {
		startup.File.Level = configtypes.LogLevelInfo
	}
	return build(startup, config)
}

// NewConsoleLogger is a console-only logger for command line tools
func NewConsoleLogger(level string) (*DynamicLogger, error) {
	return NewLogger(configtypes.LogConfig{
		Level: level,
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  configtypes.LogFormatConsole,
		},
	})
}

// NewDefaultLogger is used before the config file has been read
func NewDefaultLogger() (*DynamicLogger, error) {
	return NewConsoleLogger(configtypes.LogLevelDebug)
}

// build creates cores from active and remembers configured for later switching
func build(active, configured configtypes.LogConfig) (*DynamicLogger, error) {
	global := parseLogLevel(active.Level)
	dl := &DynamicLogger{config: configured}

	var cores []zapcore.Core

	if active.Console.Enabled {
		dl.console = &output{
			level:      zap.NewAtomicLevelAt(resolveLogLevel(active.Console.Level, global)),
			configured: configured.Console.Level,
		}
		cores = append(cores, zapcore.NewCore(
			createEncoder(active.Console.Format),
			zapcore.Lock(os.Stdout),
			dl.console.level))
	}

	if active.File.Enabled {
		if active.File.Path == "" {
			return nil, fmt.Errorf("file.path must be specified when file logging is enabled")
		}
		dl.file = &output{
			level:      zap.NewAtomicLevelAt(resolveLogLevel(active.File.Level, global)),
			configured: configured.File.Level,
		}
		cores = append(cores, zapcore.NewCore(
			createEncoder(active.File.Format),
			createFileWriter(active.File.Path, active.File.Rotation),
			dl.file.level))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one log output (console or file) must be enabled")
	}

	dl.Logger = zap.New(zapcore.NewTee(cores...))
	return dl, nil
}

// SwitchToConfiguredLevel restores the levels from the config file
func (dl *DynamicLogger) SwitchToConfiguredLevel() {
	dl.Info("Switching logger to configured level", zap.String("level", dl.config.Level))

	global := parseLogLevel(dl.config.Level)
	for _, out := range dl.outputs() {
		out.level.SetLevel(resolveLogLevel(out.configured, global))
	}
}

// EnsureInfoLevelForShutdown lowers quieter outputs to INFO so the shutdown sequence is logged
func (dl *DynamicLogger) EnsureInfoLevelForShutdown() {
	changed := false
	for _, out := range dl.outputs() {
		if out.level.Level() > zap.InfoLevel {
			out.level.SetLevel(zap.InfoLevel)
			changed = true
		}
	}
	if changed {
		dl.Info("Switched to INFO level for shutdown visibility")
	}
}

func (dl *DynamicLogger) outputs() []*output {
	outs := make([]*output, 0, 2)
	if dl.console != nil {
		outs = append(outs, dl.console)
	}
	if dl.file != nil {
		outs = append(outs, dl.file)
	}
	return outs
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case configtypes.LogLevelDebug:
		return zap.DebugLevel
	case configtypes.LogLevelWarn:
		return zap.WarnLevel
	case configtypes.LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// resolveLogLevel prefers the output's own level over the global one
func resolveLogLevel(outputLevel string, globalLevel zapcore.Level) zapcore.Level {
	if outputLevel != "" {
		return parseLogLevel(outputLevel)
	}
	return globalLevel
}

func createEncoder(format string) zapcore.Encoder {
	if format == configtypes.LogFormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if format == configtypes.LogFormatText {
		// No color codes in files
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func createFileWriter(path string, rotation configtypes.RotationConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSize,
		MaxAge:     rotation.MaxAge,
		MaxBackups: rotation.MaxBackups,
		Compress:   rotation.Compress,
	})
}
