package line

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	ErrorMethodNotAllowed = "method_not_allowed"
	ErrorSignatureInvalid = "signature_invalid"
	ErrorInvalidPayload   = "invalid_payload"
	ErrorSendFailure      = "send_failure"
)

// Error is a categorized webhook failure. The category decides the HTTP status.
type Error struct {
	Category string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Category, e.Detail)
	default:
		return e.Category
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError creates a categorized webhook error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// WrapError categorizes err, keeping it reachable through errors.Is and errors.As.
func WrapError(category string, detail string, err error) error {
	return &Error{Category: category, Detail: detail, Err: err}
}

// CategoryFromError returns the stable category for an error when available.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	return ""
}

// StatusFromError maps a webhook error to the response status.
func StatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch CategoryFromError(err) {
	case ErrorSignatureInvalid:
		return http.StatusForbidden
	case ErrorMethodNotAllowed, ErrorInvalidPayload, ErrorSendFailure:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
