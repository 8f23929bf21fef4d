// Package provider implements the external identity providers used for
// account linking. Every provider resolves an authorization code to a
// normalized domain.ProviderProfile; the GitHub implementation talks to the
// real API and Mock resolves codes locally.
package provider

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/gosimple/slug"
)

var ErrUnknownProvider = errors.New("provider: unknown provider")

// Provider is one OAuth identity provider.
type Provider interface {
	// Name is the lowercase identifier used in routes and connections.
	Name() string
	// Label is the human readable name used in messages.
	Label() string
	// AuthCodeURL is where the browser is sent to authorize.
	AuthCodeURL(state string) string
	// Exchange resolves the callback code to a profile. Email is trimmed
	// and lowercased.
	Exchange(ctx context.Context, code string) (domain.ProviderProfile, error)
}

// Registry looks providers up by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names returns the registered provider names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	minUsernameLength = 3
	maxUsernameLength = 20
)

// SanitizeUsername turns a provider handle into a local username suggestion:
// lowercase, only [a-z0-9_], at most 20 characters and padded to at least 3.
func SanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range slug.Make(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() == maxUsernameLength {
			break
		}
	}

	out := b.String()
	for len(out) < minUsernameLength {
		out += "_"
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
