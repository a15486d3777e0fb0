package llm

import "errors"

var (
	// ErrModelUnavailable is returned when the model backend could not be reached
	// or returned an API error.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelResponseInvalid is returned when the model answered but its output
	// did not match the declared output schema.
	ErrModelResponseInvalid = errors.New("model response invalid")
	// ErrInvalidRequest is returned when an input fails validation before any
	// model call is made.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrToolUnavailable marks a failed tool call. It is reported to the model
	// as the tool result and never aborts a flow on its own.
	ErrToolUnavailable = errors.New("tool unavailable")
)

// Validator is implemented by flow inputs and outputs that carry checks
// beyond their JSON shape.
type Validator interface {
	Validate() error
}
