package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by repositories
// and services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// Problem errors
var (
	ErrProblemNotFound = errors.New("problem not found")
	ErrProblemInactive = errors.New("problem is not active")
)

// User errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// Submission errors
var (
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Judge task errors
var (
	ErrTaskNotFound = errors.New("judge task not found")
)

// General errors
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)
