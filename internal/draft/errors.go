package draft

import (
	"errors"
	"fmt"

	"github.com/joelkehle/devfeasibility/internal/reconcile"
)

const (
	CodeValidation    = "validation"
	CodeNotFound      = "not_found"
	CodeMissingFields = "missing_fields"
	CodeUnavailable   = "unavailable"
	CodeInternal      = "internal"
)

type Error struct {
	Code    string
	Message string
	// Missing is set for CodeMissingFields.
	Missing []reconcile.Field
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation:
		return 400
	case CodeNotFound:
		return 404
	case CodeMissingFields:
		return 422
	case CodeUnavailable:
		return 503
	default:
		return 500
	}
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: statusForCode(code)}
}

func missingFieldsError(missing []reconcile.Field) *Error {
	e := newError(CodeMissingFields, MissingPrompt(missing))
	e.Missing = missing
	return e
}

// storeError wraps a backend failure as unavailable.
func storeError(op string, err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return newError(CodeUnavailable, fmt.Sprintf("%s: %v", op, err))
}

// CodeOf returns the code of a draft error, or CodeInternal for anything else.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
