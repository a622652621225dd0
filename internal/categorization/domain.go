package categorization

import (
	"net/url"
	"strings"
)

// ExtractDomain returns the lowercased hostname of rawURL, or the whole
// lowercased string when it does not parse as an absolute URL
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	return strings.ToLower(u.Hostname())
}

// matchesDomain reports whether domain is d or a subdomain of it
func matchesDomain(domain, d string) bool {
	if d == "" {
		return false
	}
	return domain == d || strings.HasSuffix(domain, "."+d)
}

func matchesAnyDomain(domain string, list []string) bool {
	for _, d := range list {
		if matchesDomain(domain, d) {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func countHits(keywords []string, texts ...string) int {
	n := 0
	for _, k := range keywords {
		for _, t := range texts {
			if strings.Contains(t, k) {
				n++
				break
			}
		}
	}
	return n
}
