package services

import (
	"errors"

	"studyforge/internal/features"
	"studyforge/internal/schema"
)

var (
	// ErrGenerationFailed wraps any failure reaching or answering from the model
	ErrGenerationFailed = errors.New("generation failed")

	// ErrMalformedOutput is returned when the model's reply is not JSON
	ErrMalformedOutput = errors.New("model returned malformed output")

	// ErrSubmissionInFlight is returned when a caller submits while their
	// previous submission for the same feature is still running
	ErrSubmissionInFlight = errors.New("a submission is already in progress")

	// ErrUnknownFeature is returned for feature ids missing from the catalog
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrNotFound is returned when a stored record does not exist
	ErrNotFound = errors.New("not found")

	ErrEmptyInput      = features.ErrEmptyInput
	ErrInvalidInput    = features.ErrInvalidInput
	ErrSchemaViolation = schema.ErrSchemaViolation
)

// UserFacingGenerationError is the only message shown for failed generations
const UserFacingGenerationError = "Something went wrong. Please try again."
