package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/edgecomet/pdfbatch/internal/capture"
	"github.com/edgecomet/pdfbatch/internal/job"
)

const slugPlaceholder = "{slug}"

var (
	ErrUnknownSite = errors.New("unknown site")
	ErrInvalidSlug = errors.New("invalid slug")

	siteIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	slugRe   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)
)

// SiteConfig names an ordered list of pages rendered together into one document.
// Base may contain {slug}, filled per request (DefaultSlug when the request has none).
type SiteConfig struct {
	Base        string       `yaml:"base"`
	DefaultSlug string       `yaml:"default_slug,omitempty"`
	Paths       []string     `yaml:"paths"`
	Hide        []string     `yaml:"hide,omitempty"`
	BatchSize   int          `yaml:"batch_size,omitempty"`
	Readiness   []StepConfig `yaml:"readiness,omitempty"` // replaces the global readiness list
}

// Templated reports whether the site's base URL takes a slug
func (s SiteConfig) Templated() bool {
	return strings.Contains(s.Base, slugPlaceholder)
}

// URLs resolves the page list in configured order
func (s SiteConfig) URLs(slug string) ([]string, error) {
	base := s.Base
	if s.Templated() {
		if slug == "" {
			slug = s.DefaultSlug
		}
		if !slugRe.MatchString(slug) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
		}
		base = strings.ReplaceAll(base, slugPlaceholder, slug)
	}
	base = strings.TrimRight(base, "/")

	urls := make([]string, 0, len(s.Paths))
	for _, p := range s.Paths {
		urls = append(urls, base+"/"+strings.TrimLeft(p, "/"))
	}
	return urls, nil
}

func (s SiteConfig) validate(id string) error {
	if !siteIDRe.MatchString(id) {
		return fmt.Errorf("invalid site id %q (lowercase letters, digits, '-' and '_')", id)
	}
	if len(s.Paths) == 0 {
		return fmt.Errorf("sites.%s.paths must not be empty", id)
	}
	if len(s.Paths) > job.MaxURLs {
		return fmt.Errorf("sites.%s.paths exceeds %d entries", id, job.MaxURLs)
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("sites.%s.batch_size must be positive", id)
	}
	if s.Templated() && s.DefaultSlug != "" && !slugRe.MatchString(s.DefaultSlug) {
		return fmt.Errorf("sites.%s.default_slug %q is invalid", id, s.DefaultSlug)
	}

	probe := strings.ReplaceAll(s.Base, slugPlaceholder, "slug")
	u, err := url.Parse(probe)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("sites.%s.base must be an absolute http(s) url", id)
	}

	if len(s.Hide) > 0 && capture.SanitizeSelectors(s.Hide) == "" {
		return fmt.Errorf("sites.%s.hide has no usable selectors", id)
	}
	if _, err := BuildPolicy(s.Readiness); err != nil {
		return fmt.Errorf("sites.%s.readiness: %w", id, err)
	}
	return nil
}

// SiteJob builds the job config for a configured site. Site readiness replaces the
// global list, and the site's hide selectors run last.
func (cfg *ServiceConfig) SiteJob(id, slug string) (job.Config, error) {
	site, ok := cfg.Sites[id]
	if !ok {
		return job.Config{}, fmt.Errorf("%w: %q", ErrUnknownSite, id)
	}

	urls, err := site.URLs(slug)
	if err != nil {
		return job.Config{}, err
	}

	jc, err := cfg.JobTemplate(urls)
	if err != nil {
		return job.Config{}, err
	}
	if len(site.Readiness) > 0 {
		if jc.Policy, err = BuildPolicy(site.Readiness); err != nil {
			return job.Config{}, err
		}
	}
	if len(site.Hide) > 0 {
		jc.Policy = jc.Policy.With(capture.HideSelectors(site.Hide...))
	}
	if site.BatchSize > 0 {
		jc.BatchSize = site.BatchSize
	}
	return jc, nil
}
