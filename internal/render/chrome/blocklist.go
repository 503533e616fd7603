package chrome

import (
	"fmt"
	"regexp"
	"strings"
)

// globalBlockedPatterns are failed on every capture. Beacons and tag managers keep
// the network busy long after the page is printable, which stalls network idle waits.
var globalBlockedPatterns = []string{
	"*2mdn.net*",
	"*adobestats.com*",
	"*adsappier.com*",
	"*doubleclick.net*",
	"*google-analytics.com*",
	"*googleadservices.com*",
	"*googlesyndication.com*",
	"*googletagservices.com*",
	"*googletagmanager.com*",
	"*facebook.net*",
	"*connect.facebook.com*",
	"*hotjar.com*",
	"*clarity.ms*",
	"*analytics.google.com*",
	"*listrakbi.com*",
	"*static.cloudflareinsights.com*",
	"*hs-analytics.net*",
	"*hubspot.com/__ptq.gif*",
	"*linkedin.com/px*",
	"*bat.bing.com*",
}

// rule is one compiled blocking pattern.
//
// Pattern syntax:
//   - "tracker.io"       exact URL, case-insensitive
//   - "*tracker.io*"     wildcard, case-insensitive
//   - "~^https://ads\."  regexp, case-sensitive
//   - "~*(pixel|beacon)" regexp, case-insensitive
type rule struct {
	source string
	re     *regexp.Regexp
}

func compileRule(pattern string) (*rule, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	var expr string
	switch {
	case strings.HasPrefix(pattern, "~*"):
		expr = "(?i)" + pattern[2:]
	case strings.HasPrefix(pattern, "~"):
		expr = pattern[1:]
	case strings.Contains(pattern, "*"):
		expr = "(?i)^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	default:
		expr = "(?i)^" + regexp.QuoteMeta(pattern) + "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	return &rule{source: pattern, re: re}, nil
}

// Blocklist decides which subresource requests a capture context fails
type Blocklist struct {
	rules                []*rule
	blockedResourceTypes map[string]struct{}
}

// NewBlocklist combines the global rules with custom patterns and resource types.
// Invalid custom patterns are skipped; Config.Validate reports them up front.
func NewBlocklist(customPatterns []string, resourceTypes []string) *Blocklist {
	bl := &Blocklist{
		rules:                make([]*rule, 0, len(globalBlockedPatterns)+len(customPatterns)),
		blockedResourceTypes: make(map[string]struct{}),
	}

	for _, group := range [][]string{globalBlockedPatterns, customPatterns} {
		for _, p := range group {
			r, err := compileRule(p)
			if err != nil {
				continue
			}
			bl.rules = append(bl.rules, r)
		}
	}

	for _, rt := range resourceTypes {
		rt = strings.TrimSpace(rt)
		if rt != "" {
			bl.blockedResourceTypes[rt] = struct{}{}
		}
	}

	return bl
}

// IsBlocked checks the full request URL against every rule
func (bl *Blocklist) IsBlocked(requestURL string) bool {
	for _, r := range bl.rules {
		if r.re.MatchString(requestURL) {
			return true
		}
	}
	return false
}

// IsResourceTypeBlocked checks a CDP resource type such as "Image" or "Media"
func (bl *Blocklist) IsResourceTypeBlocked(resourceType string) bool {
	_, blocked := bl.blockedResourceTypes[resourceType]
	return blocked
}

// Blocks reports whether a paused request should be failed. The main document is never blocked.
func (bl *Blocklist) Blocks(requestURL, resourceType string) bool {
	if resourceType == "Document" {
		return false
	}
	return bl.IsBlocked(requestURL) || bl.IsResourceTypeBlocked(resourceType)
}
