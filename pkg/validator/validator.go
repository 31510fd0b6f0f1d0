package validator

import (
	"net/mail"
	"strings"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var msgs []string
	for _, e := range v {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any errors
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Add adds a validation error
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// SanitizeEmail normalizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateStoryText checks story text length in runes, not bytes, since
// clients post emoji-heavy text.
func ValidateStoryText(text string, maxLen int) ValidationErrors {
	var errors ValidationErrors
	if len([]rune(text)) > maxLen {
		errors.Add("text", "too long")
	}
	return errors
}

// ValidateMediaKey rejects keys that could escape the media prefix.
func ValidateMediaKey(key string) bool {
	if key == "" || len(key) > 512 {
		return false
	}
	return !strings.Contains(key, "..") && !strings.HasPrefix(key, "/")
}
