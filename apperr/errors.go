// Package apperr defines the error taxonomy shared by the knowledge and
// support packages and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation marks input that violates a declared contract, either a
	// request body or a model response.
	ErrValidation = errors.New("validation failed")
	// ErrExtraction is a content error. Retrying the same bytes will not help.
	ErrExtraction = errors.New("text extraction failed")
	// ErrProvider covers embedding and chat-completion backends.
	ErrProvider             = errors.New("provider error")
	ErrEmptyModelOutput     = errors.New("model returned no content")
	ErrMalformedModelOutput = errors.New("model output is not valid JSON")
)

// HTTPStatus maps an error chain to a response code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrExtraction):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// IsGenerationFailure reports errors raised while producing a draft. They are
// all reported as 500 on the ticket path, including contract violations.
func IsGenerationFailure(err error) bool {
	return errors.Is(err, ErrProvider) ||
		errors.Is(err, ErrEmptyModelOutput) ||
		errors.Is(err, ErrMalformedModelOutput) ||
		errors.Is(err, ErrValidation)
}
