// Package forms validates request payloads before they are sent, producing
// the same Validation errors the server would.
package forms

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/famigo/famigo/internal/apierr"
)

// Validator checks request structs against their validate tags.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator that reports fields by their JSON names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Check validates payload. It returns nil or a Validation *apierr.Error
// whose field errors are keyed by JSON field name.
func (v *Validator) Check(payload any) error {
	err := v.v.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierr.ClassifyInternal(fmt.Errorf("validate: %w", err))
	}
	fields := apierr.FieldErrors{}
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], message(fe))
	}
	return apierr.ClassifyFields(fields, "Please check the highlighted fields.")
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Must be at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Must be at least %s.", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Must be at most %s characters.", fe.Param())
		}
		return fmt.Sprintf("Must be at most %s.", fe.Param())
	case "eqfield":
		return "Passwords do not match."
	case "nefield":
		return "Must differ from the current password."
	case "datetime":
		return "Use the format YYYY-MM-DD."
	default:
		return fmt.Sprintf("Invalid value (%s).", fe.Tag())
	}
}
