package core

import "errors"

// Error taxonomy sentinels. Components wrap these with fmt.Errorf("%w")
// to add context; the HTTP boundary matches them with errors.Is to pick
// a status code.
var (
	// ErrInvalidInput indicates a missing or out-of-range request field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingConfiguration indicates an absent provider credential.
	ErrMissingConfiguration = errors.New("missing configuration")
	// ErrUpstream indicates a non-success or failed-job response from a provider.
	ErrUpstream = errors.New("upstream error")
	// ErrInvalidResponse indicates a malformed or unexpected provider payload.
	ErrInvalidResponse = errors.New("invalid provider response")
	// ErrPersistence indicates a filesystem write or read failure.
	ErrPersistence = errors.New("persistence error")
	// ErrParse indicates a free-text completion that could not be parsed
	// into the expected structured shape.
	ErrParse = errors.New("parse error")
	// ErrPollingTimedOut indicates an asynchronous job that did not reach a
	// terminal state within the configured attempt budget.
	ErrPollingTimedOut = errors.New("polling timed out")
)
