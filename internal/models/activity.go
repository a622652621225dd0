package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityDescriptor is the input of a categorization call. Empty URL and
// WindowTitle mean absent.
type ActivityDescriptor struct {
	AppName        string     `json:"app_name" binding:"required"`
	URL            string     `json:"url,omitempty"`
	WindowTitle    string     `json:"window_title,omitempty"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
}

// ResolutionStep names the stage of the resolver that produced a result
type ResolutionStep string

const (
	StepAppRule      ResolutionStep = "app_rule"
	StepCustomRule   ResolutionStep = "custom_rule"
	StepURL          ResolutionStep = "url"
	StepAppHeuristic ResolutionStep = "app_heuristic"
	StepUnknownSite  ResolutionStep = "unknown_site"
	StepLookupFailed ResolutionStep = "lookup_failed"
)

// ResolvedCategorization is the ephemeral result of one categorization call
type ResolvedCategorization struct {
	Category    Category       `json:"category"`
	Subcategory *Subcategory   `json:"subcategory,omitempty"`
	Confidence  float64        `json:"confidence"`
	Reason      string         `json:"reason"`
	NeedsReview bool           `json:"needs_review,omitempty"`
	Step        ResolutionStep `json:"step"`
}

// UsageQuery selects the URL activity one learner pass aggregates
type UsageQuery struct {
	Since          time.Time
	OrganizationID *uuid.UUID
	MinVisits      int
	Limit          int
	// Timezone buckets visit days and start hours
	Timezone string
}

// DomainActivity is the URL activity of one domain. Durations and StartHours
// hold one entry per visit.
type DomainActivity struct {
	Domain      string
	UniqueUsers int
	DaysVisited int
	Durations   []float64 // seconds
	StartHours  []float64
}

// Visits returns the number of recorded visits
func (a DomainActivity) Visits() int {
	return len(a.Durations)
}

// DomainUsage is an aggregated visit count for one domain
type DomainUsage struct {
	Domain             string  `json:"domain"`
	VisitCount         int     `json:"visit_count"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}
