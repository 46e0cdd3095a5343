package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// Excluded link patterns (account, login and non-publication pages)
var excludedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^/(login|signup|join)\b`),
	regexp.MustCompile(`(?i)^/profile/`),
	regexp.MustCompile(`(?i)^/(institution|lab|topic)/`),
	regexp.MustCompile(`(?i)\.(pdf|png|jpe?g|gif|zip)$`),
}

// NormalizeLink resolves href against base and returns an absolute http(s)
// URL without fragment. ok is false for links that cannot be crawled.
func NormalizeLink(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	if !ref.IsAbs() {
		baseURL, err := url.Parse(base)
		if err != nil || !baseURL.IsAbs() {
			return "", false
		}
		ref = baseURL.ResolveReference(ref)
	}

	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	if ref.Hostname() == "" {
		return "", false
	}

	ref.Fragment = ""
	ref.RawFragment = ""
	ref.Host = strings.ToLower(ref.Host)
	return ref.String(), true
}

// IsExcluded checks if a link path matches any excluded pattern
func IsExcluded(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return true
	}
	for _, pattern := range excludedPatterns {
		if pattern.MatchString(parsed.Path) {
			return true
		}
	}
	return false
}

// FilterLinks normalizes links against sourceURL and drops uncrawlable,
// excluded and repeated entries while keeping page order
func FilterLinks(sourceURL string, links []string) []string {
	seen := make(map[string]bool)
	var filtered []string

	for _, link := range links {
		normalized, ok := NormalizeLink(sourceURL, link)
		if !ok {
			continue
		}

		// Skip self references
		if normalized == sourceURL {
			continue
		}

		if IsExcluded(normalized) {
			continue
		}

		if seen[normalized] {
			continue
		}

		seen[normalized] = true
		filtered = append(filtered, normalized)
	}

	return filtered
}
