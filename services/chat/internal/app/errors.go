package app

import "errors"

var (
	ErrUserRequired     = errors.New("user id required")
	ErrEmptyMessage     = errors.New("message required")
	ErrInvalidMessageID = errors.New("message id too long")
	ErrDuplicateMessage = errors.New("message id already used")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionForbidden = errors.New("session forbidden")
	ErrHistoryNotFound  = errors.New("history entry not found")
	// ErrArchiveDisabled indicates no object store is configured.
	ErrArchiveDisabled = errors.New("transcript archive not configured")
)
