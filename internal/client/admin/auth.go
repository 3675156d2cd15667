package admin

import (
	"context"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/client"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/dmitrijs2005/aivedhaguard/internal/timex"
)

type API interface {
	AdminLogin(ctx context.Context, email, password string) (*client.AdminSession, error)
	AdminLogout(ctx context.Context, token string) error
}

// defaultTokenTTL applies when the login answer carries no expires_in.
const defaultTokenTTL = 8 * time.Hour

type AuthService struct {
	api   API
	store Store
	now   func() time.Time
	log   logging.Logger
}

func NewAuthService(api API, store Store, now func() time.Time, logger logging.Logger) *AuthService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuthService{api: api, store: store, now: now, log: logger}
}

// Login signs in and stores the admin token, its expiry and the admin user.
// The expiry is written before the token so a concurrent guard never sees a
// token without one.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.AdminUser, error) {
	sess, err := s.api.AdminLogin(ctx, email, password)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(sess.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	exp := s.now().Add(ttl)

	user := sess.User
	encoded, err := models.EncodeAdminUser(&user)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetItem(ctx, common.KeyAdminTokenExpiry, timex.FormatMillis(exp)); err != nil {
		return nil, err
	}
	if err := s.store.SetItem(ctx, common.KeyAdminToken, sess.Token); err != nil {
		return nil, err
	}
	if err := s.store.SetItem(ctx, common.KeyAdminUser, encoded); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "admin signed in", "email", user.Email, "role", user.Role, "expires_at", exp)
	return &user, nil
}

// Logout tells the backend best effort and always clears local keys.
func (s *AuthService) Logout(ctx context.Context) error {
	token, ok, err := s.store.GetItem(ctx, common.KeyAdminToken)
	if err == nil && ok && token != "" {
		if err := s.api.AdminLogout(ctx, token); err != nil {
			s.log.Warn(ctx, "admin logout call failed", "error", err)
		}
	}
	return ClearSession(ctx, s.store)
}
