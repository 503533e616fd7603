package configtypes

import (
	"github.com/edgecomet/pdfbatch/pkg/types"
)

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// RedisConfig enables the job report store and per-site locks
type RedisConfig struct {
	Enabled   bool           `yaml:"enabled"`
	Addr      string         `yaml:"addr"`
	Password  string         `yaml:"password"`
	DB        int            `yaml:"db"`
	KeyPrefix string         `yaml:"key_prefix"`
	ReportTTL types.Duration `yaml:"report_ttl"`
	// Compression of stored reports: none, snappy or lz4
	Compression string `yaml:"compression"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig maps onto lumberjack: sizes in MB, age in days
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// ValidLogLevel reports whether level is one of the supported names
func ValidLogLevel(level string) bool {
	switch level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// ValidLogFormat reports whether format is one of the supported encoders
func ValidLogFormat(format string) bool {
	switch format {
	case LogFormatJSON, LogFormatConsole, LogFormatText:
		return true
	}
	return false
}
