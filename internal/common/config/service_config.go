package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/edgecomet/pdfbatch/internal/capture"
	"github.com/edgecomet/pdfbatch/internal/common/configtypes"
	"github.com/edgecomet/pdfbatch/internal/common/redis"
	"github.com/edgecomet/pdfbatch/internal/common/yamlutil"
	"github.com/edgecomet/pdfbatch/internal/job"
	"github.com/edgecomet/pdfbatch/internal/render/chrome"
	"github.com/edgecomet/pdfbatch/pkg/types"
)

const (
	// SafetyMargin is added to the job deadline for the HTTP server timeout
	// so fasthttp doesn't drop the connection before the merged document is written
	SafetyMargin = 10 * time.Second

	defaultServerListen  = ":10080"
	defaultJobDeadline   = 10 * time.Minute
	defaultReportTTL     = 24 * time.Hour
	defaultRedisPrefix   = "pdfbatch:"
	defaultMetricsPath   = "/metrics"
	defaultMetricsPrefix = "pdfbatch"
)

var metricsNamespaceRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ServiceConfig is the YAML configuration shared by the PDF service and the one-shot CLI
type ServiceConfig struct {
	Server    ServerConfig              `yaml:"server"`
	Chrome    ChromeConfig              `yaml:"chrome"`
	Job       JobConfig                 `yaml:"job"`
	Readiness []StepConfig              `yaml:"readiness"`
	Sites     map[string]SiteConfig     `yaml:"sites"`
	Redis     configtypes.RedisConfig   `yaml:"redis"`
	Log       configtypes.LogConfig     `yaml:"log"`
	Metrics   configtypes.MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	ID     string `yaml:"id"`
	Listen string `yaml:"listen"`
	// MaxJobs bounds concurrently running jobs: "auto" sizes by RAM, one browser per job
	MaxJobs string `yaml:"max_jobs"`
	// AllowPrivateTargets lets ad-hoc jobs capture private addresses (local testing only)
	AllowPrivateTargets bool `yaml:"allow_private_targets"`
}

type ChromeConfig struct {
	ExecPath             string         `yaml:"exec_path"`
	Headless             *bool          `yaml:"headless,omitempty"`
	NoSandbox            *bool          `yaml:"no_sandbox,omitempty"`
	Viewport             ViewportConfig `yaml:"viewport"`
	UserAgent            string         `yaml:"user_agent"`
	StartTimeout         types.Duration `yaml:"start_timeout"`
	BlockedPatterns      []string       `yaml:"blocked_patterns,omitempty"`
	BlockedResourceTypes []string       `yaml:"blocked_resource_types,omitempty"`
}

type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type JobConfig struct {
	BatchSize         int            `yaml:"batch_size"`
	WidthCap          int            `yaml:"width_cap"`
	NavigationTimeout types.Duration `yaml:"navigation_timeout"`
	EmitTimeout       types.Duration `yaml:"emit_timeout"`
	Deadline          types.Duration `yaml:"deadline"`
}

// applyDefaults fills zero values before validation
func (cfg *ServiceConfig) applyDefaults() {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaultServerListen
	}
	if cfg.Server.MaxJobs == "" {
		cfg.Server.MaxJobs = "auto"
	}

	if cfg.Chrome.Viewport.Width == 0 {
		cfg.Chrome.Viewport.Width = chrome.DefaultViewportWidth
	}
	if cfg.Chrome.Viewport.Height == 0 {
		cfg.Chrome.Viewport.Height = chrome.DefaultViewportHeight
	}
	if cfg.Chrome.UserAgent == "" {
		cfg.Chrome.UserAgent = chrome.DefaultUserAgent
	}
	if cfg.Chrome.StartTimeout == 0 {
		cfg.Chrome.StartTimeout = types.Duration(chrome.DefaultStartTimeout)
	}

	if cfg.Job.BatchSize == 0 {
		cfg.Job.BatchSize = job.DefaultBatchSize
	}
	if cfg.Job.WidthCap == 0 {
		cfg.Job.WidthCap = capture.DefaultWidthCap
	}
	if cfg.Job.NavigationTimeout == 0 {
		cfg.Job.NavigationTimeout = types.Duration(capture.DefaultNavigationTimeout)
	}
	if cfg.Job.EmitTimeout == 0 {
		cfg.Job.EmitTimeout = types.Duration(capture.DefaultEmitTimeout)
	}
	if cfg.Job.Deadline == 0 {
		cfg.Job.Deadline = types.Duration(defaultJobDeadline)
	}

	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = defaultRedisPrefix
	}
	if cfg.Redis.ReportTTL == 0 {
		cfg.Redis.ReportTTL = types.Duration(defaultReportTTL)
	}
	if cfg.Redis.Compression == "" {
		cfg.Redis.Compression = redis.CompressionSnappy
	}

	// If both outputs are disabled, log to console
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultMetricsPrefix
	}
}

// Validate checks configuration validity
func (cfg *ServiceConfig) Validate() error {
	if err := configtypes.ValidateListenAddress(cfg.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}
	if cfg.Server.MaxJobs != "auto" {
		n, err := strconv.Atoi(cfg.Server.MaxJobs)
		if err != nil || n <= 0 {
			return fmt.Errorf("server.max_jobs must be 'auto' or a positive integer")
		}
	}

	if err := cfg.ChromeConfig().Validate(); err != nil {
		return fmt.Errorf("invalid chrome config: %w", err)
	}

	if cfg.Job.BatchSize < 0 {
		return fmt.Errorf("job.batch_size must be positive")
	}
	if cfg.Job.WidthCap < 0 {
		return fmt.Errorf("job.width_cap must be positive")
	}
	if cfg.Job.NavigationTimeout < 0 || cfg.Job.EmitTimeout < 0 || cfg.Job.Deadline < 0 {
		return fmt.Errorf("job timeouts must not be negative")
	}

	if _, err := BuildPolicy(cfg.Readiness); err != nil {
		return fmt.Errorf("invalid readiness: %w", err)
	}

	for id, site := range cfg.Sites {
		if err := site.validate(id); err != nil {
			return err
		}
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.Redis.ReportTTL < 0 {
		return fmt.Errorf("redis.report_ttl must not be negative")
	}
	if !redis.ValidCompression(cfg.Redis.Compression) {
		return fmt.Errorf("redis.compression must be one of none, snappy, lz4: %q", cfg.Redis.Compression)
	}

	if err := validateLog(cfg.Log); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		if err := configtypes.ValidateListenAddress(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
		if configtypes.SamePort(cfg.Metrics.Listen, cfg.Server.Listen) {
			return fmt.Errorf("metrics.listen port must differ from server.listen port when metrics enabled")
		}
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}
	if !metricsNamespaceRe.MatchString(cfg.Metrics.Namespace) {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", cfg.Metrics.Namespace)
	}

	return nil
}

func validateLog(log configtypes.LogConfig) error {
	if !configtypes.ValidLogLevel(log.Level) {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn or error)", log.Level)
	}
	if log.Console.Level != "" && !configtypes.ValidLogLevel(log.Console.Level) {
		return fmt.Errorf("invalid log.console.level: %s", log.Console.Level)
	}
	if log.Console.Enabled && log.Console.Format != configtypes.LogFormatJSON && log.Console.Format != configtypes.LogFormatConsole {
		return fmt.Errorf("invalid log.console.format: %s (must be json or console)", log.Console.Format)
	}

	if !log.File.Enabled {
		return nil
	}
	if log.File.Path == "" {
		return fmt.Errorf("log.file.path must be specified when file logging is enabled")
	}
	if log.File.Level != "" && !configtypes.ValidLogLevel(log.File.Level) {
		return fmt.Errorf("invalid log.file.level: %s", log.File.Level)
	}
	if log.File.Format != configtypes.LogFormatJSON && log.File.Format != configtypes.LogFormatText {
		return fmt.Errorf("invalid log.file.format: %s (must be json or text)", log.File.Format)
	}
	r := log.File.Rotation
	if r.MaxSize < 0 || r.MaxAge < 0 || r.MaxBackups < 0 {
		return fmt.Errorf("log.file.rotation values must be >= 0")
	}
	return nil
}

// ChromeConfig converts the YAML section into the renderer's config
func (cfg *ServiceConfig) ChromeConfig() *chrome.Config {
	c := chrome.DefaultConfig()
	c.ExecPath = cfg.Chrome.ExecPath
	if cfg.Chrome.Headless != nil {
		c.Headless = *cfg.Chrome.Headless
	}
	if cfg.Chrome.NoSandbox != nil {
		c.NoSandbox = *cfg.Chrome.NoSandbox
	}
	c.ViewportWidth = cfg.Chrome.Viewport.Width
	c.ViewportHeight = cfg.Chrome.Viewport.Height
	c.UserAgent = cfg.Chrome.UserAgent
	c.StartTimeout = cfg.Chrome.StartTimeout.ToDuration()
	c.BlockedPatterns = cfg.Chrome.BlockedPatterns
	c.BlockedResourceTypes = cfg.Chrome.BlockedResourceTypes
	c.MaxBrowsers = cfg.Server.MaxJobs
	return c
}

// ServerTimeout bounds one HTTP request: the job deadline plus SafetyMargin
func (cfg *ServiceConfig) ServerTimeout() time.Duration {
	return cfg.Job.Deadline.ToDuration() + SafetyMargin
}

// JobTemplate builds a job config for urls using the global job settings and policy.
// The caller may override fields before running it.
func (cfg *ServiceConfig) JobTemplate(urls []string) (job.Config, error) {
	policy, err := BuildPolicy(cfg.Readiness)
	if err != nil {
		return job.Config{}, err
	}
	return job.Config{
		URLs:              urls,
		BatchSize:         cfg.Job.BatchSize,
		Policy:            policy,
		WidthCap:          cfg.Job.WidthCap,
		NavigationTimeout: cfg.Job.NavigationTimeout.ToDuration(),
		EmitTimeout:       cfg.Job.EmitTimeout.ToDuration(),
		Deadline:          cfg.Job.Deadline.ToDuration(),
	}, nil
}

// Load reads, defaults and validates the configuration at path
func Load(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML strictly, then applies defaults and validates
func Parse(data []byte) (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// GetConfigPath resolves the config file path
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}
