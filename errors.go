package lmsauth

import (
	"errors"
	"fmt"
	"net/http"
)

// Store sentinels. Backends wrap these so callers can use errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// ErrorKind classifies an Error and decides its HTTP status.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindConflict
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// HTTPStatus returns the status code an error of this kind is reported with.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error codes carried in JSON error bodies.
const (
	ErrCodeValidation      = "validation_error"
	ErrCodeEmailExists     = "email_exists"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeWrongPassword   = "wrong_password"
	ErrCodeNotAuthed       = "not_authenticated"
	ErrCodeInvalidToken    = "invalid_token"
	ErrCodeMissingToken    = "missing_token"
	ErrCodeUserNotFound    = "user_not_found"
	ErrCodeInternal        = "internal_error"
	ErrCodeInvalidBody     = "invalid_body"
	ErrCodeAccountInactive = "account_inactive"
)

// Error is the caller-visible failure of an auth operation. Message is safe to
// show to clients; Err holds the underlying cause for logs only.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Field   string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the response status for this error.
func (e *Error) HTTPStatus() int { return e.Kind.HTTPStatus() }

func ValidationError(code, message, field string) *Error {
	if code == "" {
		code = ErrCodeValidation
	}
	return &Error{Kind: KindValidation, Code: code, Message: message, Field: field}
}

func ConflictError(code, message, field string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message, Field: field}
}

func AuthenticationError(code, message string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

func AuthorizationError(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

func NotFoundError(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// InternalError hides err behind a generic message.
func InternalError(err error) *Error {
	return &Error{Kind: KindInternal, Code: ErrCodeInternal, Message: "Internal server error", Err: err}
}

// AsError extracts an *Error from err, converting anything else to an
// internal error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return InternalError(err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
