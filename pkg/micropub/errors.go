package micropub

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

var (
	// ErrMissingToken indicates the request carried no bearer token
	ErrMissingToken = errors.New("missing access token")

	// ErrInvalidToken indicates the verifier rejected the token
	ErrInvalidToken = errors.New("invalid access token")

	// ErrPageNotFound indicates no post exists at the requested URL
	ErrPageNotFound = errors.New("page not found")

	// ErrDeclined indicates a hook ran but did not perform the action
	ErrDeclined = errors.New("hook declined")

	// ErrMediaNotFound indicates no stored media exists for a key
	ErrMediaNotFound = errors.New("media not found")
)

// ErrorCode is an error value from the Micropub error vocabulary
type ErrorCode string

const (
	CodeInvalidRequest    ErrorCode = "invalid_request"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeForbidden         ErrorCode = "forbidden"
	CodeInsufficientScope ErrorCode = "insufficient_scope"
)

// Error is a protocol error ready to be written to the client
type Error struct {
	Code        ErrorCode
	Description string
	Scope       string
	Status      int
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Body returns the JSON error object
func (e *Error) Body() map[string]string {
	body := map[string]string{"error": string(e.Code)}
	if e.Description != "" {
		body["error_description"] = e.Description
	}
	if e.Scope != "" {
		body["scope"] = e.Scope
	}
	return body
}

// WWWAuthenticate formats the Bearer challenge sent with 401 responses
func (e *Error) WWWAuthenticate() string {
	parts := []string{`Bearer realm="micropub"`}
	if e.Code != CodeUnauthorized {
		parts = append(parts, fmt.Sprintf(`error="%s"`, e.Code))
	}
	if e.Description != "" {
		parts = append(parts, fmt.Sprintf(`error_description="%s"`, strings.ReplaceAll(e.Description, `"`, `'`)))
	}
	if e.Scope != "" {
		parts = append(parts, fmt.Sprintf(`scope="%s"`, e.Scope))
	}
	return strings.Join(parts, ", ")
}

// InvalidRequest creates a 400 invalid_request error
func InvalidRequest(description string) *Error {
	return &Error{Code: CodeInvalidRequest, Description: description, Status: http.StatusBadRequest}
}

// Unauthorized creates a 401 error for requests without a token
func Unauthorized(description string) *Error {
	return &Error{Code: CodeUnauthorized, Description: description, Status: http.StatusUnauthorized}
}

// Forbidden creates a 403 error for rejected tokens
func Forbidden(description string) *Error {
	return &Error{Code: CodeForbidden, Description: description, Status: http.StatusForbidden}
}

// InsufficientScope creates a 401 error naming the missing scope
func InsufficientScope(scope, description string) *Error {
	return &Error{Code: CodeInsufficientScope, Description: description, Scope: scope, Status: http.StatusUnauthorized}
}

// AsError converts any error into a protocol error.
// Errors without a protocol mapping become invalid_request carrying their message.
func AsError(err error) *Error {
	var perr *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &perr):
		return perr
	case errors.Is(err, ErrMissingToken):
		return Unauthorized("No access token was provided in the request.")
	case errors.Is(err, ErrInvalidToken):
		return Forbidden("The access token could not be verified.")
	default:
		return InvalidRequest(err.Error())
	}
}

// WriteError writes err as a protocol error response
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	perr := AsError(err)
	if perr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", perr.WWWAuthenticate())
	}
	render.Status(r, perr.Status)
	render.JSON(w, r, perr.Body())
}

// HookError records a failure returned by a host hook
type HookError struct {
	Action Action
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook failed: %v", e.Action, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
