package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials      = errors.New("invalid username or password")
	ErrEmailTaken              = errors.New("a user already exists with this email")
	ErrUsernameTaken           = errors.New("a user already exists with this username")
	ErrInvalidCode             = errors.New("invalid code")
	ErrSessionToVerifyNotFound = errors.New("could not find session to verify, please try again")
	ErrNotAuthenticated        = errors.New("not authenticated")
	ErrLastAuthMethod          = errors.New("cannot remove last auth method")
	ErrConnectionNotFound      = errors.New("connection not found")
	ErrConnectionTaken         = errors.New("this provider account is already connected to another user")
	ErrIncorrectPassword       = errors.New("incorrect password")
	ErrOnboardingExpired       = errors.New("onboarding session expired, please start again")
	ErrResetExpired            = errors.New("password reset session expired, please start again")
	ErrEmailChangeExpired      = errors.New("you must submit the code on the same device that requested the email change")
	ErrTwoFactorEnabled        = errors.New("two-factor authentication is already enabled")
	ErrTwoFactorNotEnabled     = errors.New("two-factor authentication is not enabled")
	ErrEmailDelivery           = errors.New("failed to send email, please try again")
	ErrUserNotFound            = errors.New("user not found")
	ErrRoleNotFound            = errors.New("role not found")
)

// ValidationError rejects malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ReverificationRequiredError asks the client to pass the second factor again
// before retrying; RedirectTo is the verification page.
type ReverificationRequiredError struct {
	RedirectTo string
}

func (e *ReverificationRequiredError) Error() string {
	return "recent verification required"
}
