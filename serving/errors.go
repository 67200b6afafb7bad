package serving

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zefrenchwan/txl.git/continuous"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/geometry"
	"github.com/zefrenchwan/txl.git/pattern"
	"github.com/zefrenchwan/txl.git/periods"
	"github.com/zefrenchwan/txl.git/revisions"
	"github.com/zefrenchwan/txl.git/storage"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
)

// ServiceHttpError is a custom error with an http code to return
type ServiceHttpError struct {
	httpCode int
	message  string
}

// Error to implement error interface
func (e ServiceHttpError) Error() string {
	return e.message
}

// HttpCode returns http code for response
func (e ServiceHttpError) HttpCode() int {
	return e.httpCode
}

// BuildApiErrorFromStorageError maps postgres codes to http codes
func BuildApiErrorFromStorageError(sourceError error) error {
	if sourceError == nil {
		return sourceError
	}

	message := strings.Trim(sourceError.Error(), " ")

	switch storage.FindCodeInPSQLException(sourceError) {
	case storage.INCONSISTENCY_CODE:
		return NewServiceForbiddenError(message)
	case storage.AUTH_CODE:
		return NewServiceUnauthorizedError(message)
	case storage.RESOURCE_CODE:
		return NewServiceNotFoundError(message)
	default:
		return NewServiceInternalServerError(message)
	}
}

// BuildApiErrorFromStoreError maps store, pattern and storage errors to http codes
func BuildApiErrorFromStoreError(sourceError error) error {
	if sourceError == nil {
		return sourceError
	}

	message := strings.Trim(sourceError.Error(), " ")

	switch {
	case errors.Is(sourceError, store.ErrReservedContext):
		return NewServiceForbiddenError(message)
	case errors.Is(sourceError, revisions.ErrRevisionConflict):
		return NewServiceConflictError(message)
	case errors.Is(sourceError, store.ErrStoreUnavailable):
		return NewServiceUnavailableError(message)
	case errors.Is(sourceError, continuous.ErrQueryExists):
		return NewServiceConflictError(message)
	case errors.IsAny(sourceError, continuous.ErrUnknownSituation, continuous.ErrUnknownQuery):
		return NewServiceNotFoundError(message)
	case errors.IsAny(sourceError,
		validity.ErrMalformedInterval,
		terms.ErrInvalidTerm,
		contexts.ErrInvalidContext,
		store.ErrInvalidOperation,
		pattern.ErrInvalidPattern,
		pattern.ErrInconsistentBinding,
		geometry.ErrUnsupportedGeometry,
		periods.ErrInvalidPeriod,
		periods.ErrEmptyInterval,
		storage.ErrInvalidRender,
		continuous.ErrInvalidDefinition,
		continuous.ErrInvalidQuery,
	):
		return NewServiceHttpClientError(message)
	default:
		return BuildApiErrorFromStorageError(sourceError)
	}
}

// NewServiceHttpClientError returns a 400 error with a specific message
func NewServiceHttpClientError(message string) ServiceHttpError {
	return ServiceHttpError{
		httpCode: http.StatusBadRequest,
		message:  message,
	}
}

// NewServiceUnauthorizedError returns a new 401 (unauthorized) error
func NewServiceUnauthorizedError(message string) ServiceHttpError {
	return ServiceHttpError{
		httpCode: http.StatusUnauthorized,
		message:  message,
	}
}

// NewServiceForbiddenError returns a new 403 (forbidden) error
func NewServiceForbiddenError(message string) ServiceHttpError {
	return ServiceHttpError{
		httpCode: http.StatusForbidden,
		message:  message,
	}
}

// NewServiceUnprocessableEntityError returns a 422 error (unprocessable)
func NewServiceUnprocessableEntityError(message string) ServiceHttpError {
	return ServiceHttpError{
		httpCode: http.StatusUnprocessableEntity,
		message:  message,
	}
}

// NewServiceNotFoundError returns a 404 error with a specific message
func NewServiceNotFoundError(message string) ServiceHttpError {
	return ServiceHttpError{
		httpCode: http.StatusNotFound,
		message:  message,
	}
}

// NewServiceInternalServerError returns a 500 error with a specific message
func NewServiceInternalServerError(message string) ServiceHttpError {
	return ServiceHttpError{
		httpCode: http.StatusInternalServerError,
		message:  message,
	}
}

// NewServiceConflictError returns a 409 error, caller may retry
func NewServiceConflictError(message string) ServiceHttpError {
	return ServiceHttpError{
		httpCode: http.StatusConflict,
		message:  message,
	}
}

// NewServiceUnavailableError returns a 503 error
func NewServiceUnavailableError(message string) ServiceHttpError {
	return ServiceHttpError{
		httpCode: http.StatusServiceUnavailable,
		message:  message,
	}
}
