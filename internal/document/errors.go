package document

import (
	"fmt"
	"strings"
)

// Document error codes (E200-E299).
const (
	ErrCodeSchema           = "E201" // schema violation
	ErrCodeInvalidTime      = "E202" // malformed or inconsistent time value
	ErrCodeInvalidTrigger   = "E203" // trigger type or fields invalid
	ErrCodeMissingReference = "E204" // afterStep without a stepId
	ErrCodeUndefinedTask    = "E205" // task used without a resource constraint (strict)
	ErrCodeParse            = "E206" // document is not valid YAML/JSON
	ErrCodeFormat           = "E207" // unsupported file extension
	ErrCodeRead             = "E208" // file could not be read
)

// ValidationError is one problem found in a document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in one document.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  %s", len(v), strings.Join(parts, "\n  "))
}
