package chrome

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		expectErr bool
	}{
		{
			name:     "valid config",
			modifyFn: func(c *Config) {},
		},
		{
			name:     "explicit max browsers",
			modifyFn: func(c *Config) { c.MaxBrowsers = "4" },
		},
		{
			name:      "zero viewport width",
			modifyFn:  func(c *Config) { c.ViewportWidth = 0 },
			expectErr: true,
		},
		{
			name:      "negative viewport height",
			modifyFn:  func(c *Config) { c.ViewportHeight = -1 },
			expectErr: true,
		},
		{
			name:      "zero start timeout",
			modifyFn:  func(c *Config) { c.StartTimeout = 0 },
			expectErr: true,
		},
		{
			name:      "non-numeric max browsers",
			modifyFn:  func(c *Config) { c.MaxBrowsers = "many" },
			expectErr: true,
		},
		{
			name:      "negative max browsers",
			modifyFn:  func(c *Config) { c.MaxBrowsers = "-2" },
			expectErr: true,
		},
		{
			name:      "invalid blocked pattern",
			modifyFn:  func(c *Config) { c.BlockedPatterns = []string{"~(oops"} },
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modifyFn(config)
			err := config.Validate()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_BrowserSlots(t *testing.T) {
	config := DefaultConfig()

	config.MaxBrowsers = "3"
	assert.Equal(t, 3, config.BrowserSlots())

	config.MaxBrowsers = "auto"
	auto := config.BrowserSlots()
	assert.GreaterOrEqual(t, auto, minAutoSlots)
	assert.LessOrEqual(t, auto, maxAutoSlots)
}

func TestSlotsForMemory(t *testing.T) {
	const gb = int64(1024 * 1024 * 1024)

	tests := []struct {
		name  string
		total int64
		want  int
	}{
		{"below reserve", 1 * gb, minAutoSlots},
		{"small host", 3 * gb, 2},
		{"8GB", 8 * gb, 12},
		{"huge host", 256 * gb, maxAutoSlots},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, slotsForMemory(tt.total))
		})
	}
}

func TestNewRenderer_RejectsInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.StartTimeout = -time.Second

	_, err := NewRenderer(config, zap.NewNop())
	assert.Error(t, err)
}
