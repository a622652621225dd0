package models

import (
	"time"

	"github.com/google/uuid"
)

// AppCategoryRule assigns a category to an application, globally or per organization
type AppCategoryRule struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	AppName        string       `json:"app_name" db:"app_name"`
	BundleID       *string      `json:"bundle_id,omitempty" db:"bundle_id"`
	Category       Category     `json:"category" db:"category"`
	Subcategory    *Subcategory `json:"subcategory,omitempty" db:"subcategory"`
	OrganizationID *uuid.UUID   `json:"organization_id,omitempty" db:"organization_id"`
	IsGlobal       bool         `json:"is_global" db:"is_global"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// WebsitePatternRule maps a domain substring to a category
type WebsitePatternRule struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	Pattern        string       `json:"pattern" db:"pattern"`
	Category       Category     `json:"category" db:"category"`
	Subcategory    *Subcategory `json:"subcategory,omitempty" db:"subcategory"`
	Name           *string      `json:"name,omitempty" db:"name"`
	Description    *string      `json:"description,omitempty" db:"description"`
	IsSystem       bool         `json:"is_system" db:"is_system"`
	Priority       int          `json:"priority" db:"priority"`
	OrganizationID *uuid.UUID   `json:"organization_id,omitempty" db:"organization_id"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// ProductivityRule is an organization-scoped ad hoc matcher
type ProductivityRule struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	OrganizationID     uuid.UUID    `json:"organization_id" db:"organization_id"`
	AppName            *string      `json:"app_name,omitempty" db:"app_name"`
	URLPattern         *string      `json:"url_pattern,omitempty" db:"url_pattern"`
	WindowTitlePattern *string      `json:"window_title_pattern,omitempty" db:"window_title_pattern"`
	Category           Category     `json:"category" db:"category"`
	Subcategory        *Subcategory `json:"subcategory,omitempty" db:"subcategory"`
	Priority           int          `json:"priority" db:"priority"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}

// SetAppCategoryRequest creates or replaces the rule for (app, organization)
type SetAppCategoryRequest struct {
	AppName        string       `json:"app_name" binding:"required"`
	Category       Category     `json:"category" binding:"required"`
	Subcategory    *Subcategory `json:"subcategory,omitempty"`
	BundleID       *string      `json:"bundle_id,omitempty"`
	OrganizationID *uuid.UUID   `json:"organization_id,omitempty"`
}

// UpdateAppCategoryRequest changes an existing app rule
type UpdateAppCategoryRequest struct {
	Category    *Category    `json:"category,omitempty"`
	Subcategory *Subcategory `json:"subcategory,omitempty"`
	BundleID    *string      `json:"bundle_id,omitempty"`
}

// WebsiteCategoryRequest creates a website pattern rule
type WebsiteCategoryRequest struct {
	Pattern        string       `json:"pattern" binding:"required"`
	Category       Category     `json:"category" binding:"required"`
	Subcategory    *Subcategory `json:"subcategory,omitempty"`
	Name           *string      `json:"name,omitempty"`
	Description    *string      `json:"description,omitempty"`
	Priority       *int         `json:"priority,omitempty"`
	OrganizationID *uuid.UUID   `json:"organization_id,omitempty"`
}

// UpdateWebsiteCategoryRequest changes an existing website rule
type UpdateWebsiteCategoryRequest struct {
	Category    *Category    `json:"category,omitempty"`
	Subcategory *Subcategory `json:"subcategory,omitempty"`
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Priority    *int         `json:"priority,omitempty"`
}

// WebsiteCategoryQuery filters website rule listings
type WebsiteCategoryQuery struct {
	Category       *Category  `json:"category,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
}

// ProductivityRuleRequest creates or updates an organization rule
type ProductivityRuleRequest struct {
	OrganizationID     uuid.UUID    `json:"organization_id" binding:"required"`
	AppName            *string      `json:"app_name,omitempty"`
	URLPattern         *string      `json:"url_pattern,omitempty"`
	WindowTitlePattern *string      `json:"window_title_pattern,omitempty"`
	Category           Category     `json:"category" binding:"required"`
	Subcategory        *Subcategory `json:"subcategory,omitempty"`
	Priority           int          `json:"priority"`
}

// HasMatcher reports whether at least one matcher field is set
func (r *ProductivityRuleRequest) HasMatcher() bool {
	return nonEmpty(r.AppName) || nonEmpty(r.URLPattern) || nonEmpty(r.WindowTitlePattern)
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}
