package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUpstream     = errors.New("upstream failure")

	ErrDuplicateRequest = fmt.Errorf("duplicate request: %w", ErrConflict)
	ErrMediaUnavailable = fmt.Errorf("media storage: %w", ErrUpstream)
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}
