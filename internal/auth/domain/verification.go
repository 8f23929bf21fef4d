package domain

import (
	"fmt"
	"time"
)

// VerificationType is the closed set of challenge kinds.
type VerificationType string

const (
	VerificationOnboarding    VerificationType = "onboarding"
	VerificationResetPassword VerificationType = "reset-password"
	VerificationChangeEmail   VerificationType = "change-email"
	// VerificationTwoFactor is the permanent verifier of an enrolled user.
	VerificationTwoFactor VerificationType = "2fa"
	// VerificationTwoFactorSetup is the pending enrolment challenge.
	VerificationTwoFactorSetup VerificationType = "2fa-verify"
)

// VerificationTypes lists every VerificationType.
func VerificationTypes() []VerificationType {
	return []VerificationType{
		VerificationOnboarding,
		VerificationResetPassword,
		VerificationChangeEmail,
		VerificationTwoFactor,
		VerificationTwoFactorSetup,
	}
}

// ParseVerificationType rejects anything outside VerificationTypes.
func ParseVerificationType(s string) (VerificationType, error) {
	for _, t := range VerificationTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown verification type %q", s)
}

func (t VerificationType) String() string { return string(t) }

// Verification is a pending (or, for 2fa, permanent) TOTP challenge. At most
// one exists per (Type, Target).
type Verification struct {
	// ID changes on every upsert and guards single-use consumption.
	ID        string
	Type      VerificationType
	Target    string // email address or user id
	Secret    string // base32, sealed at rest
	Algorithm string
	Period    int // seconds
	Digits    int
	CharSet   string
	ExpiresAt *time.Time // nil never expires
	CreatedAt time.Time
}
