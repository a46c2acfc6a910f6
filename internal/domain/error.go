package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrJobAlreadyActive   = errors.New("requester already has an active generation job")
	ErrAlreadyPolling     = errors.New("requester already has an active result poll")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrMissingCredentials = errors.New("generator credentials are not configured")
	ErrContextUnavailable = errors.New("schedule context unavailable")
	ErrInvalidExecContext = errors.New("invalid query execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
