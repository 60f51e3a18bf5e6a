package license

import (
	"strings"
)

// PlanTier is the subscription plan a license is billed under
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanTrial      PlanTier = "trial"
	PlanPro        PlanTier = "pro"
	PlanTeam       PlanTier = "team"
	PlanEnterprise PlanTier = "enterprise"
)

// Status is the billing state of a license
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusPastDue, StatusCancelled, StatusSuspended:
		return true
	}
	return false
}

// Entitled reports whether a license in this status may hold active devices and receive tokens.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrial
}

// Entitlements are the plan-derived claims embedded in every license token
type Entitlements struct {
	ManagedAI         bool     `json:"managed_ai"`
	MaxRequestsPerDay int      `json:"max_requests_per_day"`
	Features          []string `json:"features"`
}

// HasFeature checks if a feature is granted
func (e Entitlements) HasFeature(feature string) bool {
	for _, f := range e.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// ParsePlanTier normalises a stored plan name. Unknown names map to free.
func ParsePlanTier(s string) PlanTier {
	switch PlanTier(strings.ToLower(strings.TrimSpace(s))) {
	case PlanTrial:
		return PlanTrial
	case PlanPro:
		return PlanPro
	case PlanTeam:
		return PlanTeam
	case PlanEnterprise:
		return PlanEnterprise
	default:
		return PlanFree
	}
}

// EntitlementsFor returns the entitlements granted by a plan tier
func EntitlementsFor(tier PlanTier) Entitlements {
	switch tier {
	case PlanTrial:
		return Entitlements{
			ManagedAI:         true,
			MaxRequestsPerDay: 50,
			Features:          []string{"offline_mode", "managed_ai"},
		}
	case PlanPro:
		return Entitlements{
			ManagedAI:         true,
			MaxRequestsPerDay: 1000,
			Features:          []string{"offline_mode", "managed_ai", "byo_keys", "priority_models"},
		}
	case PlanTeam:
		return Entitlements{
			ManagedAI:         true,
			MaxRequestsPerDay: 5000,
			Features:          []string{"offline_mode", "managed_ai", "byo_keys", "priority_models", "shared_workspaces"},
		}
	case PlanEnterprise:
		return Entitlements{
			ManagedAI:         true,
			MaxRequestsPerDay: 0, // Unlimited
			Features:          []string{"offline_mode", "managed_ai", "byo_keys", "priority_models", "shared_workspaces", "sso", "priority_support"},
		}
	default:
		return Entitlements{
			ManagedAI:         false,
			MaxRequestsPerDay: 20,
			Features:          []string{"offline_mode"},
		}
	}
}

// DefaultMaxDevices is the tier's device ceiling, used when a license row carries none
func DefaultMaxDevices(tier PlanTier) int {
	switch tier {
	case PlanTeam:
		return 10
	case PlanEnterprise:
		return 50
	case PlanPro:
		return 3
	default:
		return 1
	}
}

// DeviceCeiling returns maxDevices, or the tier default when it is not positive
func DeviceCeiling(tier PlanTier, maxDevices int) int {
	if maxDevices > 0 {
		return maxDevices
	}
	return DefaultMaxDevices(tier)
}
