package domain

import "errors"

// Errors returned by storage adapters. The service layer translates them.
var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrUnknownReference = errors.New("unknown reference")
	ErrOutOfRange       = errors.New("value out of range")
)
