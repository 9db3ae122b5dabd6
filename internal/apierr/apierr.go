package apierr

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kind is the closed set of failure categories the UI branches on.
type Kind string

const (
	AuthRequired Kind = "auth_required"
	Forbidden    Kind = "forbidden"
	Validation   Kind = "validation"
	Conflict     Kind = "conflict"
	NotFound     Kind = "not_found"
	Internal     Kind = "internal"
	Transport    Kind = "transport"
)

// Kinds lists every Kind in classification order.
var Kinds = []Kind{AuthRequired, Forbidden, Validation, Conflict, NotFound, Internal, Transport}

// FormField is the catch-all key for field errors whose field name could not
// be attributed to a form input.
const FormField = "_form"

// Sentinels for errors.Is comparisons. Only the Kind is compared.
var (
	ErrAuthRequired = &Error{kind: AuthRequired}
	ErrForbidden    = &Error{kind: Forbidden}
	ErrValidation   = &Error{kind: Validation}
	ErrConflict     = &Error{kind: Conflict}
	ErrNotFound     = &Error{kind: NotFound}
	ErrInternal     = &Error{kind: Internal}
	ErrTransport    = &Error{kind: Transport}
)

// FieldErrors maps a form field name to the messages reported for it.
type FieldErrors map[string][]string

// First returns the first message for field, or "".
func (f FieldErrors) First(field string) string {
	if msgs := f[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Fields returns the field names in sorted order.
func (f FieldErrors) Fields() []string {
	return slices.Sorted(maps.Keys(f))
}

func (f FieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (f FieldErrors) clone() FieldErrors {
	if len(f) == 0 {
		return nil
	}
	out := make(FieldErrors, len(f))
	for k, v := range f {
		out[k] = slices.Clone(v)
	}
	return out
}

// Error is a classified API failure. Values are immutable once built; the
// accessors hand out copies.
type Error struct {
	kind    Kind
	status  int
	code    string
	message string
	fields  FieldErrors
	cause   error
}

// Kind reports the failure category.
func (e *Error) Kind() Kind { return e.kind }

// Status is the HTTP status, or 0 when no response was received.
func (e *Error) Status() int { return e.status }

// Code is the backend errorCode, if any.
func (e *Error) Code() string { return e.code }

// FieldErrors returns a copy of the per-field messages (Validation only).
func (e *Error) FieldErrors() FieldErrors { return e.fields.clone() }

// Message returns display text. Backend text is used verbatim when present.
func (e *Error) Message() string {
	if strings.TrimSpace(e.message) != "" {
		return e.message
	}
	return defaultMessage(e.kind)
}

func (e *Error) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.kind, e.status, e.Message())
	}
	return fmt.Sprintf("%s: %s", e.kind, e.Message())
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.kind == e.kind
}

// KindOf extracts the Kind from err. Errors outside the taxonomy report
// Internal; nil reports "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.kind
	}
	return Internal
}

func defaultMessage(k Kind) string {
	switch k {
	case AuthRequired:
		return "sign in required"
	case Forbidden:
		return "not allowed"
	case Validation:
		return "check the highlighted fields"
	case Conflict:
		return "conflicts with existing data"
	case NotFound:
		return "not found"
	case Transport:
		return "could not reach the server"
	default:
		return "something went wrong"
	}
}
