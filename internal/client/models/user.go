// Package models defines the client-side records the AiVedha Guard client
// persists and exchanges with the backend.
package models

import (
	"encoding/json"
	"strings"
)

// LoginMethod tags the identity provider used for the current session.
type LoginMethod string

const (
	LoginGoogle LoginMethod = "google"
	LoginGitHub LoginMethod = "github"
	LoginEmail  LoginMethod = "email"
)

// User is the session-scoped identity record cached under currentUser.
// Email is the identity key; Credits mirrors the backend balance.
type User struct {
	Email       string      `json:"email"`
	Name        string      `json:"name,omitempty"`
	Picture     string      `json:"picture,omitempty"`
	GoogleID    string      `json:"googleId,omitempty"`
	GitHubID    string      `json:"githubId,omitempty"`
	LoginMethod LoginMethod `json:"loginMethod,omitempty"`
	Credits     int         `json:"credits"`
	Plan        string      `json:"plan,omitempty"`
}

// SameIdentity reports whether u and other refer to the same account.
// Emails compare case-insensitively.
func (u *User) SameIdentity(other *User) bool {
	if u == nil || other == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(u.Email), strings.TrimSpace(other.Email))
}

// EncodeUser serializes u for storage.
func EncodeUser(u *User) (string, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeUser parses a stored user record. Records without an email are
// rejected since email is the identity key.
func DecodeUser(s string) (*User, error) {
	var u User
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil, err
	}
	if strings.TrimSpace(u.Email) == "" {
		return nil, ErrMissingEmail
	}
	if u.Credits < 0 {
		u.Credits = 0
	}
	return &u, nil
}
