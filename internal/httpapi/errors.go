package httpapi

import "net/http"

// APIError is the JSON shape every handler error response takes,
// mirroring the teacher's rest.APIError: a machine-readable code, a
// human message, and the HTTP status to answer with.
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]any) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: httpStatus}
}

var (
	ErrBadRequest      = NewAPIError("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrUnauthorized    = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrNotFound        = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrInvalidJSON     = NewAPIError("INVALID_JSON", "Invalid JSON in request body", http.StatusBadRequest)
	ErrInvalidToken    = NewAPIError("INVALID_TOKEN", "Invalid token", http.StatusUnauthorized)
	ErrTokenExpired    = NewAPIError("TOKEN_EXPIRED", "Token has expired", http.StatusUnauthorized)
	ErrInternalServer  = NewAPIError("INTERNAL_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrMissingDocument = NewAPIError("MISSING_DOCUMENT", "Document is required", http.StatusBadRequest)
)
