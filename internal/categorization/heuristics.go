package categorization

import (
	"fmt"
	"strings"

	"activity-categorizer/internal/models"
)

// Heuristics applies the static reference lists of a Seed
type Heuristics struct {
	seed *Seed
}

// NewHeuristics creates heuristics over seed data
func NewHeuristics(seed *Seed) *Heuristics {
	return &Heuristics{seed: seed}
}

func verdict(step models.ResolutionStep, cat models.Category, confidence float64, reason string) models.ResolvedCategorization {
	return models.ResolvedCategorization{
		Category:   cat,
		Confidence: confidence,
		Reason:     reason,
		Step:       step,
	}
}

// IsLocal reports whether domain is a loopback development host
func (h *Heuristics) IsLocal(domain string) bool {
	return matchesAnyDomain(domain, h.seed.LocalHosts)
}

// LocalResult is the verdict for a loopback development host
func (h *Heuristics) LocalResult() models.ResolvedCategorization {
	res := verdict(models.StepURL, models.CategoryProductive, 0.95, "Local development server")
	res.Subcategory = models.SubcategoryPtr(models.SubcategoryProductivity)
	return res
}

// KnownDomain checks the static domain lists. The boolean is false when the
// domain is on none of them.
func (h *Heuristics) KnownDomain(domain, rawURL, windowTitle string) (models.ResolvedCategorization, bool) {
	d := h.seed.Domains
	switch {
	case matchesAnyDomain(domain, d.Productive):
		return verdict(models.StepURL, models.CategoryProductive, 0.8,
			fmt.Sprintf("%s is an educational/productive website", domain)), true
	case matchesAnyDomain(domain, d.Distracting):
		return verdict(models.StepURL, models.CategoryDistracting, 0.8,
			fmt.Sprintf("%s is a distracting website", domain)), true
	case matchesAnyDomain(domain, d.ContextDependent):
		return h.contextDependent(domain, rawURL, windowTitle), true
	}
	return models.ResolvedCategorization{}, false
}

func (h *Heuristics) contextDependent(domain, rawURL, windowTitle string) models.ResolvedCategorization {
	u := strings.ToLower(rawURL)
	title := strings.ToLower(windowTitle)
	ctx := h.seed.Context

	switch {
	case matchesDomain(domain, "youtube.com"):
		edu := countHits(ctx.YouTube.Educational, u, title) > 0
		fun := countHits(ctx.YouTube.Entertainment, u, title) > 0
		if edu && !fun {
			return verdict(models.StepURL, models.CategoryProductive, 0.8, "Educational YouTube content detected")
		}
		if fun && !edu {
			return verdict(models.StepURL, models.CategoryDistracting, 0.8, "Entertainment YouTube content detected")
		}

	case matchesDomain(domain, "twitter.com") || matchesDomain(domain, "x.com"):
		if countHits(ctx.Twitter.Educational, u, title) > 0 {
			return verdict(models.StepURL, models.CategoryNeutral, 0.6, "Potentially educational Twitter/X content")
		}
		return verdict(models.StepURL, models.CategoryDistracting, 0.8, "Twitter/X is typically used for social media")

	case matchesDomain(domain, "reddit.com"):
		for _, sub := range ctx.Reddit.ProductiveSubreddits {
			if strings.Contains(u, "r/"+sub) {
				return verdict(models.StepURL, models.CategoryProductive, 0.8, "Educational subreddit detected")
			}
		}
	}

	return verdict(models.StepURL, models.CategoryNeutral, 0.6,
		fmt.Sprintf("%s can be either productive or distracting", domain))
}

// ByApp classifies by application name. The boolean reports whether the
// verdict is conclusive; browsers and unknown apps are not.
func (h *Heuristics) ByApp(appName, windowTitle string) (models.ResolvedCategorization, bool) {
	app := strings.ToLower(appName)
	apps := h.seed.Apps

	if containsAny(app, apps.Productive) {
		if containsAny(app, apps.Browsers) {
			return verdict(models.StepAppHeuristic, models.CategoryNeutral, 0.5, "Browser categorization based on URL"), false
		}
		return verdict(models.StepAppHeuristic, models.CategoryProductive, 0.85,
			fmt.Sprintf("%s is a productive application", appName)), true
	}

	if containsAny(app, apps.Distracting) {
		if strings.Contains(app, "discord") && strings.Contains(strings.ToLower(windowTitle), "study") {
			return verdict(models.StepAppHeuristic, models.CategoryNeutral, 0.6, "Discord might be used for study groups"), true
		}
		return verdict(models.StepAppHeuristic, models.CategoryDistracting, 0.85,
			fmt.Sprintf("%s is typically a distracting application", appName)), true
	}

	if containsAny(app, apps.System) {
		return verdict(models.StepAppHeuristic, models.CategoryNeutral, 1.0, "System application"), true
	}

	return verdict(models.StepAppHeuristic, models.CategoryNeutral, 0.5, "Unknown application"), false
}

// UnknownSite scores a domain that no rule or list covers
func (h *Heuristics) UnknownSite(domain, rawURL, windowTitle string) models.ResolvedCategorization {
	u := strings.ToLower(rawURL)
	title := strings.ToLower(windowTitle)
	ks := h.seed.UnknownSite

	for _, suffix := range ks.TrustedSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return verdict(models.StepUnknownSite, models.CategoryProductive, 0.8, "Educational or government domain")
		}
	}

	if containsAny(domain, ks.Gaming) {
		return verdict(models.StepUnknownSite, models.CategoryDistracting, 0.85, "Gaming website detected")
	}

	if containsAny(domain, ks.News) {
		if containsAny(title, ks.NewsTopics) {
			return verdict(models.StepUnknownSite, models.CategoryProductive, 0.7, "Educational news content")
		}
		return verdict(models.StepUnknownSite, models.CategoryNeutral, 0.6, "News website - productivity depends on content")
	}

	if countHits(ks.Educational, u, title) >= 2 {
		return verdict(models.StepUnknownSite, models.CategoryProductive, 0.75, "Educational content indicators found")
	}

	if countHits(ks.Distraction, u, title) >= 2 {
		return verdict(models.StepUnknownSite, models.CategoryDistracting, 0.75, "Entertainment content indicators found")
	}

	if countHits(ks.Commerce, u, domain) > 0 {
		return verdict(models.StepUnknownSite, models.CategoryDistracting, 0.8, "Shopping/commerce website")
	}

	if containsAny(domain, ks.Tools) {
		return verdict(models.StepUnknownSite, models.CategoryNeutral, 0.6, "Potential productivity tool")
	}

	res := verdict(models.StepUnknownSite, models.CategoryNeutral, 0.4, "Unknown website - will learn from usage patterns")
	res.NeedsReview = true
	return res
}

// InferSubcategory guesses a subcategory from an application name
func (h *Heuristics) InferSubcategory(appName string) (models.Subcategory, bool) {
	app := strings.ToLower(appName)
	for _, g := range h.seed.SubcategoryInference {
		for _, e := range g.Equals {
			if app == e {
				return g.Subcategory, true
			}
		}
		if containsAny(app, g.Contains) {
			return g.Subcategory, true
		}
	}
	return "", false
}
