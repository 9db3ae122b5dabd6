package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Backend errorCode values with dedicated kinds.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeConflict   = "CONFLICT"
)

// Body mirrors the backend error envelope.
type Body struct {
	ErrorCode   string       `json:"errorCode"`
	Message     string       `json:"message"`
	FieldErrors []FieldIssue `json:"fieldErrors"`
}

// FieldIssue is one entry of Body.FieldErrors.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var (
	fieldNamePattern      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\[\]]*$`)
	validationFailedRegex = regexp.MustCompile(`(?i)^\s*validation failed:?\s*`)
)

// Classify maps a response to an *Error. Successful statuses return nil,
// including 204/205 and empty bodies.
func Classify(status int, contentType string, body []byte) *Error {
	if status >= 200 && status < 300 {
		return nil
	}
	parsed, structured := parseBody(contentType, body)

	switch {
	case status == http.StatusUnauthorized:
		return &Error{kind: AuthRequired, status: status, code: parsed.ErrorCode, message: parsed.Message}
	case status == http.StatusForbidden:
		return &Error{kind: Forbidden, status: status, code: parsed.ErrorCode, message: parsed.Message}
	case structured && isValidation(parsed):
		return &Error{
			kind:    Validation,
			status:  status,
			code:    parsed.ErrorCode,
			message: parsed.Message,
			fields:  collectFields(parsed),
		}
	case structured && parsed.ErrorCode == CodeConflict:
		return &Error{kind: Conflict, status: status, code: parsed.ErrorCode, message: parsed.Message}
	case status == http.StatusNotFound:
		return &Error{kind: NotFound, status: status, code: parsed.ErrorCode, message: parsed.Message}
	case structured:
		return &Error{kind: Internal, status: status, code: parsed.ErrorCode, message: parsed.Message}
	default:
		return &Error{kind: Transport, status: status, message: fmt.Sprintf("request failed: %d", status)}
	}
}

// ClassifyTransport wraps a failure that happened before a usable response
// existed: dial errors, timeouts, cancellation, undecodable success bodies.
func ClassifyTransport(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}
	msg := "could not reach the server"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		msg = "the server took too long to respond"
	case errors.Is(err, context.Canceled):
		msg = "request cancelled"
	}
	return &Error{kind: Transport, message: msg, cause: err}
}

// MissingCredential is the AuthRequired error for a call that needs a
// credential when none is stored. No request is made in that case.
func MissingCredential() *Error {
	return &Error{kind: AuthRequired, message: "sign in required"}
}

// ClassifyInternal collapses an unexpected local failure (for example a body
// that cannot be encoded) into Internal.
func ClassifyInternal(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}
	return &Error{kind: Internal, cause: err}
}

// ClassifyFields builds a Validation error from locally detected field
// problems so forms render them the same way as server-side ones.
func ClassifyFields(fields FieldErrors, message string) *Error {
	out := make(FieldErrors, len(fields))
	for field, msgs := range fields {
		key := field
		if !fieldNamePattern.MatchString(strings.TrimSpace(field)) {
			key = FormField
		}
		for _, m := range msgs {
			out.add(key, m)
		}
	}
	return &Error{kind: Validation, message: message, fields: out}
}

// As reports whether err wraps an *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func parseBody(contentType string, body []byte) (Body, bool) {
	ct := strings.ToLower(contentType)
	if ct != "" && !strings.Contains(ct, "json") {
		return Body{}, false
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return Body{}, false
	}
	var parsed Body
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return Body{}, false
	}
	if strings.TrimSpace(parsed.ErrorCode) == "" && strings.TrimSpace(parsed.Message) == "" {
		return Body{}, false
	}
	return parsed, true
}

// isValidation accepts the errorCode, or a bare "Validation failed: ..."
// message from older backends that omit errorCode.
func isValidation(b Body) bool {
	if b.ErrorCode == CodeValidation {
		return true
	}
	return b.ErrorCode == "" && validationFailedRegex.MatchString(b.Message)
}

func collectFields(b Body) FieldErrors {
	fields := FieldErrors{}
	for _, fe := range b.FieldErrors {
		name := strings.TrimSpace(fe.Field)
		if !fieldNamePattern.MatchString(name) {
			name = FormField
		}
		fields.add(name, fe.Message)
	}
	if len(fields) == 0 {
		parseLegacyMessage(b.Message, fields)
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// parseLegacyMessage handles "Validation failed: email: bad; password: short".
func parseLegacyMessage(msg string, into FieldErrors) {
	if !validationFailedRegex.MatchString(msg) {
		return
	}
	raw := validationFailedRegex.ReplaceAllString(msg, "")
	for part := range strings.SplitSeq(raw, ";") {
		name, text, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if !fieldNamePattern.MatchString(name) {
			name = FormField
		}
		into.add(name, text)
	}
}
