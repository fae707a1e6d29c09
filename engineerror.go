package matbridge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StackFrame is one entry of an engine-side error stack.
type StackFrame struct {
	// File is the source file of the frame.
	File string `json:"file"`

	// Name is the function name of the frame.
	Name string `json:"name"`

	// Line is the line number within File.
	Line int `json:"line"`
}

// EngineError represents an error raised inside the engine. It carries the
// engine's error identifier (e.g., "Octave:undefined-function" or
// "MATLAB:UndefinedFunction"), the message, the call stack, and the cause
// chain when the engine error wraps another.
type EngineError struct {
	// Identifier is the engine error identifier. May be empty for errors
	// raised without one.
	Identifier string `json:"identifier"`

	// Message is the error message.
	Message string `json:"message"`

	// Stack is the engine-side call stack, innermost frame first.
	Stack []StackFrame `json:"stack,omitempty"`

	// Cause is the wrapped engine error, if any.
	Cause *EngineError `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	if e.Identifier != "" {
		fmt.Fprintf(&b, "%s: %s", e.Identifier, e.Message)
	} else {
		b.WriteString(e.Message)
	}
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "\n  at %s (%s:%d)", f.Name, f.File, f.Line)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "\nCaused by: %s", e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the cause, allowing errors.Is/As to walk the chain.
func (e *EngineError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// NewEngineErrorFromJSON parses an EngineError from JSON bytes, as produced
// by the worker script's error replies and stderr error lines.
func NewEngineErrorFromJSON(data []byte) (*EngineError, error) {
	var engErr EngineError
	if err := json.Unmarshal(data, &engErr); err != nil {
		return nil, err
	}
	return &engErr, nil
}

// engineErrorFromValue converts a decoded message field into an EngineError.
// The worker sends errors as nested objects; after generic decoding they
// arrive as map[string]interface{}.
func engineErrorFromValue(v interface{}) *EngineError {
	m, ok := v.(map[string]interface{})
	if !ok {
		return &EngineError{Message: fmt.Sprintf("%v", v)}
	}
	e := &EngineError{}
	if s, ok := m["identifier"].(string); ok {
		e.Identifier = s
	}
	if s, ok := m["message"].(string); ok {
		e.Message = s
	}
	if frames, ok := m["stack"].([]interface{}); ok {
		for _, fv := range frames {
			fm, ok := fv.(map[string]interface{})
			if !ok {
				continue
			}
			frame := StackFrame{}
			if s, ok := fm["file"].(string); ok {
				frame.File = s
			}
			if s, ok := fm["name"].(string); ok {
				frame.Name = s
			}
			if n, ok := fm["line"].(float64); ok {
				frame.Line = int(n)
			}
			e.Stack = append(e.Stack, frame)
		}
	}
	if cause, ok := m["cause"]; ok && cause != nil {
		e.Cause = engineErrorFromValue(cause)
	}
	return e
}
