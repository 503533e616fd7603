package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/pdfbatch/internal/capture"
)

func TestSiteConfig_URLs(t *testing.T) {
	site := SiteConfig{
		Base:        "https://www.officialmediaguide.com/{slug}/",
		DefaultSlug: "cpc",
		Paths:       []string{"/", "print/", "/print1/?product=Direct%20Mail", "contact/"},
	}

	urls, err := site.URLs("")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.officialmediaguide.com/cpc/",
		"https://www.officialmediaguide.com/cpc/print/",
		"https://www.officialmediaguide.com/cpc/print1/?product=Direct%20Mail",
		"https://www.officialmediaguide.com/cpc/contact/",
	}, urls)

	urls, err = site.URLs("aapa")
	require.NoError(t, err)
	assert.Equal(t, "https://www.officialmediaguide.com/aapa/", urls[0])

	_, err = site.URLs("../admin")
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestSiteConfig_URLs_NoTemplate(t *testing.T) {
	site := SiteConfig{Base: "https://example.com", Paths: []string{"a", "b/"}}

	urls, err := site.URLs("ignored/../slug")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b/"}, urls)
}

func TestSiteConfig_URLs_TemplateWithoutSlug(t *testing.T) {
	site := SiteConfig{Base: "https://example.com/{slug}", Paths: []string{"/"}}
	_, err := site.URLs("")
	assert.ErrorIs(t, err, ErrInvalidSlug)
}

func TestSiteJob(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	jc, err := cfg.SiteJob("cpc", "")
	require.NoError(t, err)
	assert.Len(t, jc.URLs, 4)
	assert.Equal(t, 5, jc.BatchSize)
	assert.Equal(t, 1280, jc.WidthCap)

	steps := jc.Policy.Steps
	require.Len(t, steps, 4)
	assert.Equal(t, capture.StepNetworkIdle, steps[0].Kind)
	assert.Equal(t, capture.StepScrollSweep, steps[1].Kind)
	assert.Equal(t, capture.StepAnimatedCounterSettle, steps[2].Kind)
	assert.Equal(t, ".counter", steps[2].Selector)
	assert.Equal(t, capture.StepHideSelectors, steps[3].Kind)
	assert.Equal(t, []string{"header", "footer"}, steps[3].Selectors)
	require.NoError(t, jc.Validate())

	_, err = cfg.SiteJob("missing", "")
	assert.ErrorIs(t, err, ErrUnknownSite)
}

func TestSiteJob_SiteOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
sites:
  docs:
    base: "https://docs.example.com"
    batch_size: 2
    readiness:
      - type: fixed_delay
        delay: 1s
    paths: ["a", "b", "c"]
`))
	require.NoError(t, err)

	jc, err := cfg.SiteJob("docs", "")
	require.NoError(t, err)
	assert.Equal(t, 2, jc.BatchSize)
	require.Len(t, jc.Policy.Steps, 1)
	assert.Equal(t, capture.StepFixedDelay, jc.Policy.Steps[0].Kind)
}

func TestBuildPolicy(t *testing.T) {
	policy, err := BuildPolicy([]StepConfig{
		{Type: "network_idle"},
		{Type: "expand_accordions"},
		{Type: "replace_iframes"},
		{Type: "remove_selectors", Selectors: []string{".cookie-banner"}},
	})
	require.NoError(t, err)
	require.Len(t, policy.Steps, 4)
	assert.Equal(t, capture.EventNetworkAlmostIdle, policy.Steps[0].Event)
	assert.Equal(t, capture.DefaultStepTimeout, policy.Steps[1].Timeout)

	_, err = BuildPolicy([]StepConfig{{Type: "fixed_delay"}})
	assert.ErrorIs(t, err, capture.ErrInvalidPolicy)
}
