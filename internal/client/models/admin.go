package models

import "encoding/json"

// AdminUser is the back-office identity returned by the admin auth endpoints
// and cached under adminUser.
type AdminUser struct {
	ID       string `json:"admin_user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status,omitempty"`
}

func EncodeAdminUser(u *AdminUser) (string, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeAdminUser(s string) (*AdminUser, error) {
	var u AdminUser
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil, err
	}
	return &u, nil
}
