package models

import (
	"regexp"
	"time"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

var slugPattern = regexp.MustCompile(`^[a-z0-9-]{1,100}$`)

func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

type Tenant struct {
	ID          string
	Slug        string
	Name        string
	Description *string
	Settings    map[string]any
	Plan        Plan
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TenantSummary is a workspace as seen by one of its members.
type TenantSummary struct {
	Tenant
	Role        Role
	MemberCount int
}

// TenantUpdate holds optional changes; nil fields are left untouched and
// Settings keys are merged into the existing bag.
type TenantUpdate struct {
	Name        *string
	Description *string
	Settings    map[string]any
	Plan        *Plan
}
