package subscription

import (
	"testing"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePlan(t *testing.T) {
	cases := map[string]string{
		"Professional_Monthly": "professional",
		"starter-yearly":       "starter",
		" Business Annual ":    "business",
		"enterprise":           "enterprise",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePlan(in), in)
	}
}

func TestPlanCredits(t *testing.T) {
	c, ok := PlanCredits("Professional_Monthly")
	assert.True(t, ok)
	assert.Equal(t, 50, c)

	_, ok = PlanCredits("galactic")
	assert.False(t, ok)

	assert.Equal(t, "Free", PlanName(""))
	assert.Equal(t, "galactic", PlanName("galactic"))
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		status, plan string
		want         models.SubscriptionStatus
	}{
		{"live", "starter", models.StatusActive},
		{"ACTIVE", "starter", models.StatusActive},
		{"non_renewing", "starter", models.StatusCancelled},
		{"non-renewing", "starter", models.StatusCancelled},
		{"canceled", "starter", models.StatusCancelled},
		{"trialing", "starter", models.StatusTrial},
		{"ended", "starter", models.StatusExpired},
		{"free", "free", models.StatusFree},
		{"", "free", models.StatusFree},
		{"mystery", "", models.StatusFree},
		{"mystery", "business", models.StatusActive},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeStatus(tc.status, tc.plan), "%s/%s", tc.status, tc.plan)
	}
}
