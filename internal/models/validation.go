package models

import (
	"fmt"
	"strings"
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	// Field is the name of the invalid field.
	Field string `json:"field"`

	// Message explains why the field is invalid.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects validation failures so callers can report all
// problems at once instead of stopping at the first.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Add appends a validation error.
func (v *ValidationErrors) Add(err ValidationError) {
	v.Errors = append(v.Errors, err)
}

// AddMessage appends a validation error for the given field.
func (v *ValidationErrors) AddMessage(field, message string) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors reports whether any validation errors were collected.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v.Errors))
	for i := range v.Errors {
		parts = append(parts, v.Errors[i].Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns the collection as an error, or nil when empty.
func (v *ValidationErrors) Err() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
