package models

import "errors"

var ErrMissingEmail = errors.New("user record has no email")
