package client

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SubscriptionPayload is the subscription object as the backend sends it,
// with field aliases resolved but values not yet normalized. Status and
// PlanCode keep the server vocabulary.
type SubscriptionPayload struct {
	PlanCode       string
	PlanName       string
	Credits        int
	HasCredits     bool
	Status         string
	PeriodEnd      *time.Time
	SubscriptionID string
	AutoRenew      bool
}

type rawSubscription struct {
	SubscriptionPlan   string          `json:"subscription_plan"`
	PlanCode           string          `json:"planCode"`
	Plan               string          `json:"plan"`
	PlanName           string          `json:"planName"`
	Credits            json.RawMessage `json:"credits"`
	Status             string          `json:"status"`
	CurrentPeriodEnd   json.RawMessage `json:"currentPeriodEnd"`
	CurrentPeriodEndSn json.RawMessage `json:"current_period_end"`
	ExpiresAt          json.RawMessage `json:"expires_at"`
	SubscriptionIDSn   string          `json:"subscription_id"`
	SubscriptionID     string          `json:"subscriptionId"`
	AutoRenewal        *bool           `json:"autoRenewal"`
	AutoRenew          *bool           `json:"auto_renew"`
}

func (p *SubscriptionPayload) UnmarshalJSON(b []byte) error {
	var raw rawSubscription
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*p = SubscriptionPayload{
		PlanCode:       firstNonEmpty(raw.SubscriptionPlan, raw.PlanCode, raw.Plan),
		PlanName:       raw.PlanName,
		Status:         raw.Status,
		SubscriptionID: firstNonEmpty(raw.SubscriptionIDSn, raw.SubscriptionID),
	}
	p.Credits, p.HasCredits = parseCredits(raw.Credits)

	for _, ts := range []json.RawMessage{raw.CurrentPeriodEnd, raw.CurrentPeriodEndSn, raw.ExpiresAt} {
		if t, ok := parseTime(ts); ok {
			p.PeriodEnd = &t
			break
		}
	}

	switch {
	case raw.AutoRenewal != nil:
		p.AutoRenew = *raw.AutoRenewal
	case raw.AutoRenew != nil:
		p.AutoRenew = *raw.AutoRenew
	}
	return nil
}

// parseCredits accepts a number, a numeric string or {"available": n}.
func parseCredits(b json.RawMessage) (int, bool) {
	if len(b) == 0 || string(b) == "null" {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		return int(n), true
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v, true
		}
		return 0, false
	}

	var obj struct {
		Available *float64 `json:"available"`
	}
	if err := json.Unmarshal(b, &obj); err == nil && obj.Available != nil {
		return int(*obj.Available), true
	}
	return 0, false
}

// parseTime accepts RFC 3339 strings and unix timestamps in seconds or
// milliseconds.
func parseTime(b json.RawMessage) (time.Time, bool) {
	if len(b) == 0 || string(b) == "null" {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t, true
		}
		return time.Time{}, false
	}

	var n int64
	if err := json.Unmarshal(b, &n); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	return time.Time{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
