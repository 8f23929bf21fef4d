package domain

import "time"

type User struct {
	ID        string
	Email     string // lowercased
	Username  string // lowercased
	Name      string // optional display name
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Password is the single credential row owned by a user.
type Password struct {
	UserID    string
	Hash      string // argon2id PHC string
	UpdatedAt time.Time
}
