package categorization

import (
	"strings"

	"activity-categorizer/internal/models"
)

// RuleMatch is the first organization rule that matched an activity
type RuleMatch struct {
	Rule    *models.ProductivityRule
	Pattern string
}

// MatchCustomRule walks rules in the given order and returns the first one
// whose app name, URL or window title pattern is a case-insensitive substring
// of the activity. Callers pass rules sorted by priority then recency.
func MatchCustomRule(rules []*models.ProductivityRule, appName, rawURL, windowTitle string) (*RuleMatch, bool) {
	app := strings.ToLower(appName)
	u := strings.ToLower(rawURL)
	title := strings.ToLower(windowTitle)

	for _, r := range rules {
		if r == nil {
			continue
		}
		if p, ok := matchField(r.AppName, app); ok {
			return &RuleMatch{Rule: r, Pattern: p}, true
		}
		if p, ok := matchField(r.URLPattern, u); ok {
			return &RuleMatch{Rule: r, Pattern: p}, true
		}
		if p, ok := matchField(r.WindowTitlePattern, title); ok {
			return &RuleMatch{Rule: r, Pattern: p}, true
		}
	}

	return nil, false
}

func matchField(pattern *string, value string) (string, bool) {
	if pattern == nil || *pattern == "" || value == "" {
		return "", false
	}
	if strings.Contains(value, strings.ToLower(*pattern)) {
		return *pattern, true
	}
	return "", false
}
