package models

import (
	"time"

	"github.com/google/uuid"
)

// SuggestionStatus tracks the review lifecycle of a suggestion
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
)

// Terminal reports whether no further transition is allowed
func (s SuggestionStatus) Terminal() bool {
	return s == SuggestionApproved || s == SuggestionRejected
}

// SuggestionSource identifies the job that produced a suggestion
type SuggestionSource string

const (
	SourceLearner SuggestionSource = "learner"
	SourceAI      SuggestionSource = "ai"
)

// ReviewAction is an admin decision on a suggestion
type ReviewAction string

const (
	ActionApprove ReviewAction = "approve"
	ActionReject  ReviewAction = "reject"
)

// Valid reports whether a is approve or reject
func (a ReviewAction) Valid() bool {
	return a == ActionApprove || a == ActionReject
}

// CategorizationSuggestion is a proposed website rule awaiting review
type CategorizationSuggestion struct {
	ID                   uuid.UUID              `json:"id" db:"id"`
	Pattern              string                 `json:"pattern" db:"pattern"`
	SuggestedCategory    Category               `json:"suggested_category" db:"suggested_category"`
	SuggestedSubcategory *Subcategory           `json:"suggested_subcategory,omitempty" db:"suggested_subcategory"`
	Confidence           float64                `json:"confidence" db:"confidence"`
	Reason               string                 `json:"reason" db:"reason"`
	Evidence             map[string]interface{} `json:"evidence,omitempty" db:"evidence"`
	Source               SuggestionSource       `json:"source" db:"source"`
	NeedsReview          bool                   `json:"needs_review" db:"needs_review"`
	Status               SuggestionStatus       `json:"status" db:"status"`
	OrganizationID       *uuid.UUID             `json:"organization_id,omitempty" db:"organization_id"`
	ReviewedBy           *uuid.UUID             `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt           *time.Time             `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt            time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at" db:"updated_at"`
}

// SuggestionQuery filters suggestion listings
type SuggestionQuery struct {
	Status         *SuggestionStatus `json:"status,omitempty"`
	Source         *SuggestionSource `json:"source,omitempty"`
	OrganizationID *uuid.UUID        `json:"organization_id,omitempty"`
	Limit          int               `json:"limit,omitempty"`
	Offset         int               `json:"offset,omitempty"`
}

// ReviewRequest is the body of a suggestion review call
type ReviewRequest struct {
	Action      ReviewAction `json:"action" binding:"required"`
	Category    *Category    `json:"category,omitempty"`
	Subcategory *Subcategory `json:"subcategory,omitempty"`
	ReviewedBy  *uuid.UUID   `json:"reviewed_by,omitempty"`
}

// BatchApproveItem is one entry of a batch approval
type BatchApproveItem struct {
	ID          uuid.UUID    `json:"id" binding:"required"`
	Category    *Category    `json:"category,omitempty"`
	Subcategory *Subcategory `json:"subcategory,omitempty"`
}

// BatchApproveResult reports the outcome of a batch approval
type BatchApproveResult struct {
	Applied int                  `json:"applied"`
	Failed  map[uuid.UUID]string `json:"failed,omitempty"`
}

// ReviewDecision is the resolved outcome of a review, applied atomically with
// the row lock taken on the suggestion
type ReviewDecision struct {
	Status      SuggestionStatus
	Category    Category
	Subcategory *Subcategory
	ReviewedBy  *uuid.UUID
}
