// Package autherr is the failure taxonomy shared by every authentication
// adapter. Each failure carries a Kind (what went wrong), a numeric Code (what
// the request layer reports) and the message shown to the client.
package autherr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the numeric error code reported to clients.
type Code int

const (
	OtherCause          Code = -1
	InternalServerError Code = 1
	ObjectNotFound      Code = 101
	InvalidJSON         Code = 107
	ScriptFailed        Code = 141
	UnsupportedService  Code = 252
)

// Kind classifies a failure.
type Kind string

const (
	KindInvalidToken         Kind = "invalid_token"
	KindMalformedToken       Kind = "malformed_token"
	KindKeyNotFound          Kind = "key_not_found"
	KindVerificationFailed   Kind = "verification_failed"
	KindIssuerMismatch       Kind = "issuer_mismatch"
	KindSubjectMismatch      Kind = "subject_mismatch"
	KindUnsupportedService   Kind = "unsupported_service"
	KindMisconfigured        Kind = "misconfigured"
	KindMfaInvalidToken      Kind = "mfa_invalid_token"
	KindMfaMissingToken      Kind = "mfa_missing_token"
	KindMfaTokenRequested    Kind = "mfa_token_requested"
	KindMfaInvalidData       Kind = "mfa_invalid_data"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindConflict             Kind = "conflict"
	KindInvalidRequest       Kind = "invalid_request"
	KindNotFound             Kind = "not_found"
)

var kindCodes = map[Kind]Code{
	KindInvalidToken:         ObjectNotFound,
	KindMalformedToken:       ObjectNotFound,
	KindKeyNotFound:          ObjectNotFound,
	KindVerificationFailed:   ObjectNotFound,
	KindIssuerMismatch:       ObjectNotFound,
	KindSubjectMismatch:      ObjectNotFound,
	KindUnsupportedService:   UnsupportedService,
	KindMisconfigured:        InternalServerError,
	KindMfaInvalidToken:      OtherCause,
	KindMfaMissingToken:      OtherCause,
	KindMfaTokenRequested:    OtherCause,
	KindMfaInvalidData:       OtherCause,
	KindAuthenticationFailed: ScriptFailed,
	KindConflict:             OtherCause,
	KindInvalidRequest:       InvalidJSON,
	KindNotFound:             ObjectNotFound,
}

// CodeFor returns the numeric code reported for kind.
func CodeFor(k Kind) Code {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return ScriptFailed
}

// Error is a typed authentication failure.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	// Err is the underlying cause. It is logged, never sent to clients.
	Err error
}

// Error returns the client-facing message.
func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind. A target with an empty message
// matches any message, so the predefined Err* values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// HTTPStatus maps the failure to an HTTP status for the request layer.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindMisconfigured:
		return http.StatusInternalServerError
	case KindUnsupportedService, KindInvalidRequest, KindMfaInvalidData:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusUnauthorized
	}
}

// WithCause returns a copy of e carrying err as its cause.
func (e *Error) WithCause(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// New builds an *Error of kind k with the kind's default code.
func New(k Kind, message string) *Error {
	return &Error{Kind: k, Code: CodeFor(k), Message: message}
}

// Newf is New with a formatted message.
func Newf(k Kind, format string, args ...any) *Error {
	return New(k, fmt.Sprintf(format, args...))
}

// Wrap builds an *Error of kind k whose cause is err.
func Wrap(err error, k Kind, message string) *Error {
	return &Error{Kind: k, Code: CodeFor(k), Message: message, Err: err}
}

// WithCode builds an *Error with an explicit code, for adapters whose
// providers historically report a code other than the kind's default.
func WithCode(k Kind, code Code, message string) *Error {
	return &Error{Kind: k, Code: code, Message: message}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// FromError returns err as an *Error, wrapping untyped errors into
// KindAuthenticationFailed with err's text as the message.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	msg := err.Error()
	if msg == "" {
		msg = "Authentication failed."
	}
	return Wrap(err, KindAuthenticationFailed, msg)
}

// IsKind reports whether err carries an *Error of kind k.
func IsKind(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}

// Predefined values for errors.Is matching and for fixed messages.
var (
	ErrInvalidToken       = &Error{Kind: KindInvalidToken, Code: ObjectNotFound}
	ErrMalformedToken     = &Error{Kind: KindMalformedToken, Code: ObjectNotFound}
	ErrKeyNotFound        = &Error{Kind: KindKeyNotFound, Code: ObjectNotFound}
	ErrVerificationFailed = &Error{Kind: KindVerificationFailed, Code: ObjectNotFound}
	ErrIssuerMismatch     = &Error{Kind: KindIssuerMismatch, Code: ObjectNotFound}
	ErrSubjectMismatch    = &Error{Kind: KindSubjectMismatch, Code: ObjectNotFound}
	ErrMisconfigured      = &Error{Kind: KindMisconfigured, Code: InternalServerError}
	ErrConflict           = &Error{Kind: KindConflict, Code: OtherCause}

	ErrUnsupportedService = &Error{
		Kind:    KindUnsupportedService,
		Code:    UnsupportedService,
		Message: "This authentication method is unsupported.",
	}
	ErrMfaInvalidToken = &Error{
		Kind:    KindMfaInvalidToken,
		Code:    OtherCause,
		Message: "Invalid MFA token",
	}
	ErrMfaTokenRequested = &Error{
		Kind:    KindMfaTokenRequested,
		Code:    OtherCause,
		Message: "Please enter the token",
	}
	ErrMfaInvalidData = &Error{
		Kind:    KindMfaInvalidData,
		Code:    OtherCause,
		Message: "Invalid MFA data",
	}
)

// MissingAdditional is the failure for a login that omits a provider whose
// policy requires it alongside the primary credential.
func MissingAdditional(provider string) *Error {
	return New(KindMfaMissingToken, "Missing additional authData "+provider)
}
