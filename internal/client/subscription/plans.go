package subscription

import (
	"strings"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
)

type plan struct {
	name    string
	credits int
}

// plans maps normalized plan codes to the credits each billing period grants.
var plans = map[string]plan{
	"free":         {"Free", 3},
	"starter":      {"Starter", 10},
	"professional": {"Professional", 50},
	"business":     {"Business", 150},
	"enterprise":   {"Enterprise", 500},
}

// NormalizePlan lowercases code, maps dashes and spaces to underscores and
// strips the billing-period suffix, so "Professional-Monthly" becomes
// "professional".
func NormalizePlan(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	c = strings.NewReplacer("-", "_", " ", "_").Replace(c)
	for _, suffix := range []string{"_monthly", "_yearly", "_annual", "_annually"} {
		c = strings.TrimSuffix(c, suffix)
	}
	return c
}

// PlanCredits returns the credits entitlement of a plan code.
func PlanCredits(code string) (int, bool) {
	p, ok := plans[NormalizePlan(code)]
	return p.credits, ok
}

// PlanName returns a display name for a plan code.
func PlanName(code string) string {
	if p, ok := plans[NormalizePlan(code)]; ok {
		return p.name
	}
	if code == "" {
		return plans["free"].name
	}
	return code
}

var statusAliases = map[string]models.SubscriptionStatus{
	"active":       models.StatusActive,
	"live":         models.StatusActive,
	"renewed":      models.StatusActive,
	"cancelled":    models.StatusCancelled,
	"canceled":     models.StatusCancelled,
	"non_renewing": models.StatusCancelled,
	"expired":      models.StatusExpired,
	"ended":        models.StatusExpired,
	"trial":        models.StatusTrial,
	"trialing":     models.StatusTrial,
	"in_trial":     models.StatusTrial,
	"free":         models.StatusFree,
}

// NormalizeStatus maps the backend's status vocabulary onto the fixed set.
// Unknown values read as free on the free plan and active otherwise.
func NormalizeStatus(status, planCode string) models.SubscriptionStatus {
	s := strings.ToLower(strings.TrimSpace(status))
	s = strings.ReplaceAll(s, "-", "_")
	if st, ok := statusAliases[s]; ok {
		return st
	}
	if p := NormalizePlan(planCode); p == "" || p == "free" {
		return models.StatusFree
	}
	return models.StatusActive
}
