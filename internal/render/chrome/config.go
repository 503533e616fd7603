package chrome

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
	DefaultStartTimeout   = 30 * time.Second
	DefaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36 pdfbatch/1.0"

	// Each browser process is budgeted at roughly this much RAM
	browserProcessBytes = int64(500 * 1024 * 1024)
	reservedSystemBytes = int64(2 * 1024 * 1024 * 1024)
	minAutoSlots        = 1
	maxAutoSlots        = 50
)

// Config holds the browser launch and page emulation settings shared by every capture context
type Config struct {
	ExecPath       string        // empty uses chromedp's lookup
	Headless       bool          // false only for local debugging
	NoSandbox      bool          // required in most containers
	ViewportWidth  int           // CSS px; also the layout width measured against the width cap
	ViewportHeight int           // CSS px
	UserAgent      string        // empty keeps Chrome's own
	StartTimeout   time.Duration // bound on launching a browser process

	BlockedPatterns      []string // added to the global analytics blocklist
	BlockedResourceTypes []string // CDP resource types, e.g. "Media", "Font"

	// MaxBrowsers bounds concurrent browser processes across jobs: "auto" or a positive integer
	MaxBrowsers string
}

// DefaultConfig is used in tests and as the base for YAML-derived configs
func DefaultConfig() *Config {
	return &Config{
		Headless:       true,
		NoSandbox:      true,
		ViewportWidth:  DefaultViewportWidth,
		ViewportHeight: DefaultViewportHeight,
		UserAgent:      DefaultUserAgent,
		StartTimeout:   DefaultStartTimeout,
		MaxBrowsers:    "auto",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	if c.StartTimeout <= 0 {
		return fmt.Errorf("start timeout must be positive")
	}
	if c.MaxBrowsers != "auto" {
		n, err := strconv.Atoi(c.MaxBrowsers)
		if err != nil {
			return fmt.Errorf("max browsers must be 'auto' or valid integer")
		}
		if n <= 0 {
			return fmt.Errorf("max browsers must be positive")
		}
	}
	for _, p := range c.BlockedPatterns {
		if _, err := compileRule(p); err != nil {
			return fmt.Errorf("blocked pattern %q: %w", p, err)
		}
	}
	return nil
}

// BrowserSlots resolves MaxBrowsers to a concrete number
func (c *Config) BrowserSlots() int {
	if c.MaxBrowsers == "auto" {
		return autoBrowserSlots()
	}
	n, err := strconv.Atoi(c.MaxBrowsers)
	if err != nil || n <= 0 {
		return autoBrowserSlots()
	}
	return n
}

// autoBrowserSlots sizes by system RAM: (total - 2GB) / 500MB, clamped
func autoBrowserSlots() int {
	total := int64(8 * 1024 * 1024 * 1024) // fallback when memory can't be read
	if v, err := mem.VirtualMemory(); err == nil {
		total = int64(v.Total)
	}
	return slotsForMemory(total)
}

func slotsForMemory(totalBytes int64) int {
	slots := int((totalBytes - reservedSystemBytes) / browserProcessBytes)
	if slots < minAutoSlots {
		slots = minAutoSlots
	}
	if slots > maxAutoSlots {
		slots = maxAutoSlots
	}
	return slots
}
