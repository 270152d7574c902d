package auth

import "errors"

var (
	ErrInvalidToken       = errors.New("invalid or expired session token")
	ErrTooManyRequests    = errors.New("code requested too recently")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrCodeExpired        = errors.New("verification code expired or not requested")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminDisabled      = errors.New("admin login is not configured")
)
