package models

import "time"

// SubscriptionStatus is the normalized billing status.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
	StatusTrial     SubscriptionStatus = "trial"
	StatusFree      SubscriptionStatus = "free"
)

// Subscription is the entitlement snapshot: plan, credit balance and billing
// state. Credits may exceed TotalCredits; the server value is authoritative.
type Subscription struct {
	PlanCode       string             `json:"planCode"`
	PlanName       string             `json:"planName"`
	Credits        int                `json:"credits"`
	TotalCredits   int                `json:"totalCredits"`
	Status         SubscriptionStatus `json:"status"`
	RenewalDate    *time.Time         `json:"renewalDate,omitempty"`
	AutoRenew      bool               `json:"autoRenew"`
	SubscriptionID string             `json:"subscriptionId,omitempty"`
}
