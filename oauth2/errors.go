package oauth2

import "fmt"

// ErrorCode is an OAuth2 error code as returned in the "error" member of an error response.
type ErrorCode string

const (
	ErrCodeInvalidRequest          ErrorCode = "invalid_request"
	ErrCodeInvalidClient           ErrorCode = "invalid_client"
	ErrCodeInvalidGrant            ErrorCode = "invalid_grant"
	ErrCodeInvalidScope            ErrorCode = "invalid_scope"
	ErrCodeUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrCodeUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrCodeAccessDenied            ErrorCode = "access_denied"
	ErrCodeUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
	ErrCodeInvalidToken            ErrorCode = "invalid_token"
	ErrCodeNotFound                ErrorCode = "not_found"
	ErrCodeServerError             ErrorCode = "server_error"

	// ErrCodeTemporarilyUnavailable answers requests the rate limiter turned away.
	ErrCodeTemporarilyUnavailable ErrorCode = "temporarily_unavailable"
)

// Error is a structured protocol failure. It is the only failure shape that crosses
// the grant boundary; internal causes are logged, never returned to callers.
type Error struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates a protocol error.
func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// Static messages shared by the grant handlers.
const (
	MsgLockedOut          = "account locked due to too many failed attempts"
	MsgInvalidCredentials = "the username or password is invalid"
	MsgUserNoLongerExists = "user no longer exists"
	MsgTokenNoLongerValid = "the token is no longer valid"
	MsgServerError        = "the authorization server encountered an unexpected error"
)

func UnsupportedGrantType(grantType GrantType) *Error {
	return NewError(ErrCodeUnsupportedGrantType, fmt.Sprintf("grant type %q is not supported", grantType))
}

func InvalidGrant(description string) *Error {
	return NewError(ErrCodeInvalidGrant, description)
}

func AccessDenied(description string) *Error {
	return NewError(ErrCodeAccessDenied, description)
}

func InvalidToken(description string) *Error {
	return NewError(ErrCodeInvalidToken, description)
}

func InvalidRequest(description string) *Error {
	return NewError(ErrCodeInvalidRequest, description)
}

func InvalidClient(description string) *Error {
	return NewError(ErrCodeInvalidClient, description)
}

func InvalidScope(description string) *Error {
	return NewError(ErrCodeInvalidScope, description)
}

func UnauthorizedClient(description string) *Error {
	return NewError(ErrCodeUnauthorizedClient, description)
}

func NotFound(description string) *Error {
	return NewError(ErrCodeNotFound, description)
}

// ServerError hides the cause behind a static description.
func ServerError() *Error {
	return NewError(ErrCodeServerError, MsgServerError)
}
