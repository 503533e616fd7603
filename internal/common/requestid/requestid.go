package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxLength matches a UUID so stored IDs have one width
	MaxLength = 36
	// PrefixLength is the random part of a labelled ID
	PrefixLength = 8
	// MaxLabelLength is what remains after the prefix and hyphen
	MaxLabelLength = MaxLength - PrefixLength - 1
)

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)
	hyphenRuns  = regexp.MustCompile(`-+`)
	validID     = regexp.MustCompile(`^[a-zA-Z0-9-]{1,36}$`)
)

// New returns a job ID. A label such as a site ID is sanitized and prefixed with
// eight random hex characters ("3fa9c01b-cpc"); an empty label yields a UUID.
func New(label string) string {
	clean := strings.ReplaceAll(label, " ", "-")
	clean = unsafeChars.ReplaceAllString(clean, "")
	clean = hyphenRuns.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-")

	if clean == "" {
		return uuid.New().String()
	}
	if len(clean) > MaxLabelLength {
		clean = clean[:MaxLabelLength]
	}
	return randomPrefix() + "-" + clean
}

// Valid reports whether id could have been produced by New.
// Used to reject path parameters before they reach a store key.
func Valid(id string) bool {
	return validID.MatchString(id)
}

func randomPrefix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return uuid.New().String()[:PrefixLength]
	}
	return hex.EncodeToString(buf)[:PrefixLength]
}
