package domain

import "time"

// Connection links a user to an external identity provider account.
// (ProviderName, ProviderID) is globally unique.
type Connection struct {
	ID           string
	ProviderName string
	ProviderID   string
	UserID       string
	CreatedAt    time.Time
}

// ProviderProfile is the normalized identity returned by an OAuth exchange.
type ProviderProfile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}
