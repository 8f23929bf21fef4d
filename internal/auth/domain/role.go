package domain

import "time"

// Default role names seeded by the initial migration.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}
