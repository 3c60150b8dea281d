package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers and for the HTTP layer.
type Code string

const (
	CodeValidation               Code = "VALIDATION_ERROR"
	CodeUnauthorized             Code = "UNAUTHORIZED"
	CodeForbidden                Code = "FORBIDDEN"
	CodeUnauthorizedCounterparty Code = "UNAUTHORIZED_COUNTERPARTY"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeConflict                 Code = "CONFLICT"
	CodeInvalidTransition        Code = "INVALID_TRANSITION"
	CodeInvalidOrderState        Code = "INVALID_ORDER_STATE"
	CodeAlreadyResolved          Code = "ALREADY_RESOLVED"
	CodeAmountMismatch           Code = "AMOUNT_MISMATCH"
	CodeDuplicateNotification    Code = "DUPLICATE_NOTIFICATION"
	CodeStaleSnapshot            Code = "STALE_SNAPSHOT"
	CodeEmptyOrder               Code = "EMPTY_ORDER"
	CodeSelfExchange             Code = "SELF_EXCHANGE"
	CodeInternal                 Code = "INTERNAL_ERROR"
	CodeDependency               Code = "DEPENDENCY_ERROR"
)

// Metadata is what the HTTP layer needs to know about a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:               {http.StatusBadRequest, false, "validation failed", true},
	CodeUnauthorized:             {http.StatusUnauthorized, false, "authentication required", false},
	CodeForbidden:                {http.StatusForbidden, false, "access denied", false},
	CodeUnauthorizedCounterparty: {http.StatusForbidden, false, "caller is not the exchange counterparty", false},
	CodeNotFound:                 {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:                 {http.StatusConflict, false, "conflict detected", false},
	CodeInvalidTransition:        {http.StatusConflict, false, "state transition disallowed", true},
	CodeInvalidOrderState:        {http.StatusConflict, false, "order is not in a payable state", true},
	CodeAlreadyResolved:          {http.StatusConflict, false, "negotiation already resolved", true},
	CodeAmountMismatch:           {http.StatusUnprocessableEntity, false, "payment amount does not match order total", true},
	CodeDuplicateNotification:    {http.StatusConflict, false, "notification already processed", true},
	CodeStaleSnapshot:            {http.StatusConflict, false, "product changed since it was selected", true},
	CodeEmptyOrder:               {http.StatusUnprocessableEntity, false, "no valid lines selected", false},
	CodeSelfExchange:             {http.StatusUnprocessableEntity, false, "cannot exchange for your own product", false},
	CodeInternal:                 {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:               {http.StatusServiceUnavailable, true, "dependency unavailable", true},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service returns. The message is safe to
// show to API clients when the code's metadata allows it.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode matches the outermost *Error in err's chain only, so re-wrapping a
// NOT_FOUND as VALIDATION_ERROR hides the original code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
