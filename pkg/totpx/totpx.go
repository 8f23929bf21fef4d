// Package totpx generates and verifies time-based one-time codes (RFC 6238)
// for email confirmation, password resets and authenticator apps.
package totpx

import (
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Defaults used when a caller does not override them. Authenticator apps
// assume these values, so 2FA enrolment relies on them.
const (
	DefaultAlgorithm = "SHA1"
	DefaultPeriod    = 30
	DefaultDigits    = 6
	DefaultCharSet   = "0123456789"

	secretSize = 20

	// totp.Generate insists on an issuer and account even when only the
	// secret is wanted.
	secretIssuer  = "totpx"
	secretAccount = "secret"
)

var (
	ErrUnsupportedAlgorithm = errors.New("totpx: unsupported algorithm")
	ErrInvalidPeriod        = errors.New("totpx: period must be positive")
	ErrInvalidDigits        = errors.New("totpx: digits must be between 6 and 8")
	ErrUnsupportedCharSet   = errors.New("totpx: only decimal character sets are supported")
	ErrInvalidSecret        = errors.New("totpx: secret is not valid base32")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Params is everything needed to recompute a code. It is what a verification
// challenge persists.
type Params struct {
	Secret    string
	Algorithm string
	Period    int // seconds
	Digits    int
	CharSet   string
}

// Code is a freshly generated code together with the parameters that produced it.
type Code struct {
	Params
	Code string
}

type options struct {
	params Params
	at     time.Time
}

// Option overrides one generation default.
type Option func(*options)

func WithSecret(secret string) Option { return func(o *options) { o.params.Secret = secret } }

func WithAlgorithm(algorithm string) Option {
	return func(o *options) { o.params.Algorithm = algorithm }
}

// WithPeriod sets the validity window in seconds.
func WithPeriod(seconds int) Option { return func(o *options) { o.params.Period = seconds } }

func WithDigits(digits int) Option { return func(o *options) { o.params.Digits = digits } }

func WithCharSet(charSet string) Option { return func(o *options) { o.params.CharSet = charSet } }

// WithTime generates the code for t instead of now.
func WithTime(t time.Time) Option { return func(o *options) { o.at = t } }

// Generate returns a code for the current window. A random secret is created
// unless WithSecret supplies one.
func Generate(opts ...Option) (Code, error) {
	o := options{
		params: Params{
			Algorithm: DefaultAlgorithm,
			Period:    DefaultPeriod,
			Digits:    DefaultDigits,
			CharSet:   DefaultCharSet,
		},
		at: time.Now(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.params.Secret == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      secretIssuer,
			AccountName: secretAccount,
			SecretSize:  secretSize,
		})
		if err != nil {
			return Code{}, fmt.Errorf("totpx: failed to generate secret: %w", err)
		}
		o.params.Secret = key.Secret()
	}

	validate, err := o.params.validateOpts()
	if err != nil {
		return Code{}, err
	}

	code, err := totp.GenerateCodeCustom(o.params.Secret, o.at, validate)
	if err != nil {
		return Code{}, fmt.Errorf("totpx: failed to generate code: %w", err)
	}

	o.params.Algorithm = normalizeAlgorithm(o.params.Algorithm)
	return Code{Params: o.params, Code: code}, nil
}

// Verify reports whether code matches p for the current or the immediately
// preceding window. A wrong code is (false, nil); only bad parameters error.
func Verify(code string, p Params) (bool, error) {
	return VerifyAt(code, p, time.Now())
}

// VerifyAt is Verify evaluated at t.
func VerifyAt(code string, p Params, t time.Time) (bool, error) {
	validate, err := p.validateOpts()
	if err != nil {
		return false, err
	}

	code = strings.TrimSpace(code)
	if len(code) != p.Digits {
		return false, nil
	}

	period := time.Duration(p.Period) * time.Second
	match := 0
	for _, at := range []time.Time{t, t.Add(-period)} {
		expected, err := totp.GenerateCodeCustom(p.Secret, at, validate)
		if err != nil {
			return false, fmt.Errorf("totpx: failed to generate code: %w", err)
		}
		match |= subtle.ConstantTimeCompare([]byte(expected), []byte(code))
	}
	return match == 1, nil
}

// KeyURI renders the otpauth:// URI authenticator apps scan as a QR code.
func KeyURI(issuer, account string, p Params) (string, error) {
	validate, err := p.validateOpts()
	if err != nil {
		return "", err
	}
	raw, err := decodeSecret(p.Secret)
	if err != nil {
		return "", ErrInvalidSecret
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      validate.Period,
		Digits:      validate.Digits,
		Algorithm:   validate.Algorithm,
		Secret:      raw,
	})
	if err != nil {
		return "", fmt.Errorf("totpx: failed to build key: %w", err)
	}
	return key.URL(), nil
}

func decodeSecret(secret string) ([]byte, error) {
	return secretEncoding.DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
}

func (p Params) validateOpts() (totp.ValidateOpts, error) {
	alg, err := parseAlgorithm(p.Algorithm)
	if err != nil {
		return totp.ValidateOpts{}, err
	}
	if p.Period <= 0 {
		return totp.ValidateOpts{}, ErrInvalidPeriod
	}
	if p.Digits < 6 || p.Digits > 8 {
		return totp.ValidateOpts{}, ErrInvalidDigits
	}
	if p.CharSet != "" && p.CharSet != DefaultCharSet {
		return totp.ValidateOpts{}, ErrUnsupportedCharSet
	}
	if _, err := decodeSecret(p.Secret); err != nil || p.Secret == "" {
		return totp.ValidateOpts{}, ErrInvalidSecret
	}

	return totp.ValidateOpts{
		Period:    uint(p.Period),
		Digits:    otp.Digits(p.Digits),
		Algorithm: alg,
	}, nil
}

func normalizeAlgorithm(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "")
}

func parseAlgorithm(s string) (otp.Algorithm, error) {
	switch normalizeAlgorithm(s) {
	case "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}
