package chrome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRule(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		url     string
		match   bool
	}{
		{"wildcard substring", "*tracker.io*", "https://cdn.tracker.io/t.js", true},
		{"wildcard is case-insensitive", "*tracker.io*", "https://CDN.TRACKER.IO/t.js", true},
		{"wildcard path", "*/pixel/*", "https://example.com/pixel/1.gif", true},
		{"wildcard no match", "*tracker.io*", "https://example.com/app.js", false},
		{"wildcard dots are literal", "*a.b*", "https://axb.example.com", false},
		{"exact match", "https://example.com/beacon", "HTTPS://EXAMPLE.COM/beacon", true},
		{"exact requires full url", "example.com", "https://example.com/", false},
		{"regexp case-sensitive", `~^https://ads\.`, "https://ads.example.com/x", true},
		{"regexp case-sensitive miss", `~^https://ads\.`, "https://ADS.example.com/x", false},
		{"regexp case-insensitive", "~*(pixel|beacon)", "https://example.com/BEACON", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := compileRule(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.match, r.re.MatchString(tt.url))
		})
	}
}

func TestCompileRule_Invalid(t *testing.T) {
	_, err := compileRule("   ")
	assert.Error(t, err)

	_, err = compileRule("~([unclosed")
	assert.Error(t, err)
}

func TestBlocklist_GlobalPatterns(t *testing.T) {
	bl := NewBlocklist(nil, nil)

	blocked := []string{
		"https://www.google-analytics.com/analytics.js",
		"https://www.googletagmanager.com/gtm.js?id=GTM-XXXX",
		"https://stats.g.doubleclick.net/r/collect",
		"https://static.hotjar.com/c/hotjar-1.js",
		"https://connect.facebook.net/en_US/fbevents.js",
		"https://static.cloudflareinsights.com/beacon.min.js",
	}
	for _, u := range blocked {
		assert.True(t, bl.IsBlocked(u), u)
	}

	allowed := []string{
		"https://www.officialmediaguide.com/cpc/print/",
		"https://cdn.example.com/styles.css",
		"https://fonts.example.com/inter.woff2",
	}
	for _, u := range allowed {
		assert.False(t, bl.IsBlocked(u), u)
	}
}

func TestBlocklist_CustomPatternsAndResourceTypes(t *testing.T) {
	bl := NewBlocklist(
		[]string{"*chat-widget.example*", "~*/collect\\?", "", "~([bad"},
		[]string{"Media", " Font ", ""},
	)

	assert.True(t, bl.IsBlocked("https://chat-widget.example/loader.js"))
	assert.True(t, bl.IsBlocked("https://example.com/COLLECT?v=1"))
	assert.True(t, bl.IsBlocked("https://www.google-analytics.com/g/collect"), "global rules still apply")

	assert.True(t, bl.IsResourceTypeBlocked("Media"))
	assert.True(t, bl.IsResourceTypeBlocked("Font"))
	assert.False(t, bl.IsResourceTypeBlocked("Image"))
	assert.False(t, bl.IsResourceTypeBlocked(""))
}

func TestBlocklist_Blocks(t *testing.T) {
	bl := NewBlocklist([]string{"*example.com*"}, []string{"Image"})

	tests := []struct {
		name         string
		url          string
		resourceType string
		want         bool
	}{
		{"main document never blocked", "https://example.com/", "Document", false},
		{"matching script", "https://example.com/app.js", "Script", true},
		{"blocked resource type", "https://cdn.other.org/logo.png", "Image", true},
		{"allowed", "https://cdn.other.org/app.css", "Stylesheet", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bl.Blocks(tt.url, tt.resourceType))
		})
	}
}
