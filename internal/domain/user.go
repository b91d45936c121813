// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxIDLen = 64

var (
	ErrIDTooLong = errors.New("id too long")
	ErrIDEmpty   = errors.New("id empty")
	ErrIDInvalid = errors.New("id contains reserved characters")
)

// NewClientID is used when the caller did not pick an id on the command line.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

// validateID keeps ids safe to embed as a single URL path segment.
func validateID(id string) error {
	if len(id) == 0 {
		return ErrIDEmpty
	}
	if len(id) > MaxIDLen {
		return ErrIDTooLong
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return ErrIDInvalid
		}
	}
	return nil
}
