package domain

import (
	"fmt"
	"strings"
)

// Permission access levels. A requirement of AccessEither is met by a grant
// of either.
const (
	AccessOwn    = "own"
	AccessAny    = "any"
	AccessEither = "either"
)

// Permission is an action:entity:access triple granted to roles.
type Permission struct {
	Action string
	Entity string
	Access string
}

// ParsePermission parses "action:entity:access", for example
// "delete:user:any".
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Permission{}, fmt.Errorf("malformed permission %q", s)
	}

	switch parts[2] {
	case AccessOwn, AccessAny, AccessEither:
	default:
		return Permission{}, fmt.Errorf("unknown access %q in permission %q", parts[2], s)
	}
	return Permission{Action: parts[0], Entity: parts[1], Access: parts[2]}, nil
}

// Accesses lists the granted access levels that satisfy p.
func (p Permission) Accesses() []string {
	if p.Access == AccessEither {
		return []string{AccessOwn, AccessAny}
	}
	return []string{p.Access}
}

func (p Permission) String() string {
	return p.Action + ":" + p.Entity + ":" + p.Access
}
