package client

import (
	"context"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
)

type Client interface {
	// SetAuthToken sets the consumer bearer token sent with later calls.
	SetAuthToken(token string)

	EmailLogin(ctx context.Context, email, password string) (*AuthResult, error)
	GoogleLogin(ctx context.Context, credential string) (*AuthResult, error)
	GitHubLogin(ctx context.Context, code, redirectURI string) (*AuthResult, error)

	CurrentSubscription(ctx context.Context, userID string) (*SubscriptionPayload, error)
	ActivateSubscription(ctx context.Context, subscriptionID, userID string) error

	StartAudit(ctx context.Context, req AuditRequest) (*AuditStarted, error)

	AdminVerify(ctx context.Context, token string) (*models.AdminUser, error)
	AdminLogin(ctx context.Context, email, password string) (*AdminSession, error)
	AdminLogout(ctx context.Context, token string) error
}

// AuthResult is the consumer sign-in answer.
type AuthResult struct {
	User  models.User
	Token string
}

type AuditRequest struct {
	URL    string `json:"url"`
	UserID string `json:"userId"`
	Region string `json:"region"`
}

type AuditStarted struct {
	ReportID string `json:"reportId"`
	Status   string `json:"status,omitempty"`
}

// AdminSession is the admin sign-in answer. ExpiresIn is in seconds.
type AdminSession struct {
	Token     string
	User      models.AdminUser
	ExpiresIn int64
}
