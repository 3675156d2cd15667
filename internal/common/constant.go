// Package common contains shared constants, sentinel errors and small helpers
// used across AiVedha Guard client components.
package common

// Durable storage keys. Values under the sensitive keys are encrypted at rest
// by the credential store.
const (
	KeyCurrentUser      = "currentUser"
	KeyAuthToken        = "authToken"
	KeySessionExpiresAt = "sessionExpiresAt"

	KeyAdminToken       = "adminToken"
	KeyAdminTokenExpiry = "adminTokenExpiry"
	KeyAdminUser        = "adminUser"

	KeyAuditInProgress = "audit_in_progress"
	KeyPendingPlan     = "pendingPlan"
)

// Per-user and per-transaction key prefixes. The full key is prefix + id.
const (
	PrefixPaymentActivated      = "payment_activated_"
	PrefixAuditInProgress       = "audit_in_progress_"
	PrefixOnboardingStarted     = "onboarding_started_"
	PrefixSubscriptionActivated = "subscription_activated_"
	PrefixSubscriptionLock      = "subscription_lock_"
)

// Volatile (session-lifetime) keys.
const (
	KeySessionCryptoKey = "__session_key"
	KeyGitHubOAuthState = "github_oauth_state"
)

// SensitiveKeys lists the durable keys whose values are encrypted.
var SensitiveKeys = []string{KeyAuthToken, KeyCurrentUser, KeyAdminToken}

// PerUserKeyPrefixes lists the key prefixes purged when a different user logs
// in on the same profile.
var PerUserKeyPrefixes = []string{
	PrefixPaymentActivated,
	PrefixAuditInProgress,
	PrefixOnboardingStarted,
	PrefixSubscriptionActivated,
	PrefixSubscriptionLock,
}

// PerUserKeys lists exact keys purged on user switch.
var PerUserKeys = []string{KeyAuditInProgress, KeyPendingPlan}

// AdminSessionKeys lists everything the admin token lifecycle writes.
var AdminSessionKeys = []string{KeyAdminToken, KeyAdminTokenExpiry, KeyAdminUser}
