package yamlutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxInputSize caps config files at 1MB
const MaxInputSize = 1 << 20

var (
	ErrEmptyInput    = errors.New("yaml input is empty")
	ErrInputTooLarge = errors.New("yaml input exceeds maximum size")
)

// UnmarshalStrict decodes one YAML document, rejecting unknown fields so typos
// in configuration fail loudly.
func UnmarshalStrict(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyInput
	}
	if len(data) > MaxInputSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(v); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "field") && strings.Contains(errStr, "not found") {
			return fmt.Errorf("unknown configuration field (check for typos): %w", err)
		}
		return err
	}
	return nil
}
