package provider

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
)

var ErrMockExchange = errors.New("provider: mock exchange failed")

// Mock stands in for a real provider in local development and tests.
// AuthCodeURL sends the browser straight back to the callback with
// DefaultCode, and Exchange resolves codes from Profiles.
type Mock struct {
	ProviderName  string
	ProviderLabel string
	CallbackURL   string
	DefaultCode   string

	mu       sync.Mutex
	profiles map[string]domain.ProviderProfile
}

func NewMock(name, label, callbackURL string) *Mock {
	return &Mock{
		ProviderName:  name,
		ProviderLabel: label,
		CallbackURL:   callbackURL,
		DefaultCode:   "mock-code",
		profiles:      make(map[string]domain.ProviderProfile),
	}
}

func (m *Mock) Name() string  { return m.ProviderName }
func (m *Mock) Label() string { return m.ProviderLabel }

func (m *Mock) AuthCodeURL(state string) string {
	v := url.Values{}
	v.Set("code", m.DefaultCode)
	v.Set("state", state)
	return m.CallbackURL + "?" + v.Encode()
}

// SetProfile makes code resolve to p.
func (m *Mock) SetProfile(code string, p domain.ProviderProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[code] = p
}

// Exchange returns the profile registered for code. Unregistered codes
// derive a stable profile from the code itself; codes starting with "fail"
// and empty codes error.
func (m *Mock) Exchange(ctx context.Context, code string) (domain.ProviderProfile, error) {
	if code == "" || strings.HasPrefix(code, "fail") {
		return domain.ProviderProfile{}, ErrMockExchange
	}

	m.mu.Lock()
	p, ok := m.profiles[code]
	m.mu.Unlock()
	if ok {
		p.Email = normalizeEmail(p.Email)
		return p, nil
	}

	return domain.ProviderProfile{
		ID:       m.ProviderName + "_" + code,
		Email:    normalizeEmail(code + "@" + m.ProviderName + ".example.com"),
		Username: code,
		Name:     code,
	}, nil
}
