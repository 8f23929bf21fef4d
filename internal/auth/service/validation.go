package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if len(email) > 100 {
		return &ValidationError{Field: "email", Message: "email is too long"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "email is invalid"}
	}
	return nil
}

func validateUsername(username string) error {
	switch {
	case len(username) < 3:
		return &ValidationError{Field: "username", Message: "username is too short"}
	case len(username) > 20:
		return &ValidationError{Field: "username", Message: "username is too long"}
	case !usernamePattern.MatchString(username):
		return &ValidationError{Field: "username", Message: "username can only include letters, numbers, and underscores"}
	}
	return nil
}

func validatePassword(field, password string) error {
	switch {
	case len(password) < 6:
		return &ValidationError{Field: field, Message: "password is too short"}
	case len(password) > 100:
		return &ValidationError{Field: field, Message: "password is too long"}
	}
	return nil
}

func validateName(name string) error {
	if utf8.RuneCountInString(name) > 40 {
		return &ValidationError{Field: "name", Message: "name is too long"}
	}
	return nil
}
