package job

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/edgecomet/pdfbatch/internal/capture"
)

const (
	DefaultBatchSize = 5
	MaxURLs          = 500
)

// ErrInvalidConfig wraps every job configuration error
var ErrInvalidConfig = errors.New("invalid job config")

// Config fully describes one job. Nothing outside it influences the output.
type Config struct {
	ID                string // generated when empty
	URLs              []string
	BatchSize         int
	Policy            capture.Policy
	WidthCap          int
	NavigationTimeout time.Duration
	EmitTimeout       time.Duration
	Deadline          time.Duration // zero means no job-level deadline
}

// WithDefaults fills zero-valued fields
func (c Config) WithDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.WidthCap <= 0 {
		c.WidthCap = capture.DefaultWidthCap
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = capture.DefaultNavigationTimeout
	}
	return c
}

// Validate checks the config after defaults are applied
func (c Config) Validate() error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("%w: at least one url is required", ErrInvalidConfig)
	}
	if len(c.URLs) > MaxURLs {
		return fmt.Errorf("%w: %d urls exceeds limit of %d", ErrInvalidConfig, len(c.URLs), MaxURLs)
	}
	for i, raw := range c.URLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: url %d (%q) must be an absolute http(s) url", ErrInvalidConfig, i, raw)
		}
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if c.WidthCap <= 0 {
		return fmt.Errorf("%w: width cap must be positive", ErrInvalidConfig)
	}
	if c.Deadline < 0 {
		return fmt.Errorf("%w: deadline must not be negative", ErrInvalidConfig)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// request builds the capture request for one URL
func (c Config) request(u string) capture.Request {
	return capture.Request{
		URL:               u,
		Policy:            c.Policy,
		WidthCap:          c.WidthCap,
		NavigationTimeout: c.NavigationTimeout,
		EmitTimeout:       c.EmitTimeout,
	}
}
