package domain

import (
	"errors"
	"strings"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult aggregates field-level errors. The zero value is valid.
type ValidationResult struct {
	Errors []FieldError `json:"errors,omitempty"`
}

func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) Add(field, message string) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: message})
}

func (r *ValidationResult) Merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
}

func (r ValidationResult) Messages() []string {
	messages := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		messages[i] = e.Message
	}
	return messages
}

// Has reports whether any error carries message.
func (r ValidationResult) Has(message string) bool {
	for _, e := range r.Errors {
		if e.Message == message {
			return true
		}
	}
	return false
}

// Err returns nil for a valid result and an error listing the messages otherwise.
func (r ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}
	return errors.New(strings.Join(r.Messages(), "; "))
}
