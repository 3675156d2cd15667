// Package oauth holds the client side of the Google and GitHub sign-in flows.
// Google credentials are decoded for display fields only; the backend
// verifies them when they are exchanged for a session.
package oauth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedCredential = errors.New("malformed identity credential")
	ErrStateMismatch       = errors.New("oauth state mismatch")
)

// GoogleProfile is the display subset of a Google ID token.
type GoogleProfile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// DecodeGoogleCredential reads the claims of a Google Identity Services
// credential without verifying its signature.
func DecodeGoogleCredential(credential string) (*GoogleProfile, error) {
	var claims googleClaims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(credential), &claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCredential, err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: no email claim", ErrMalformedCredential)
	}
	return &GoogleProfile{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// User converts the profile into a provisional user record for display
// until the backend answers with the authoritative one.
func (p *GoogleProfile) User() *models.User {
	return &models.User{
		Email:       p.Email,
		Name:        p.Name,
		Picture:     p.Picture,
		GoogleID:    p.Subject,
		LoginMethod: models.LoginGoogle,
	}
}
