// Package command defines the vocabulary of the dispatch core: requests,
// outcomes, parameter contracts, the handler registry, and parameter
// validation. Everything transport-facing serializes to the fixed wire
// shapes {command, params} and {success, result|error}.
package command

import "context"

// Request is one named operation with its raw parameter payload. It is
// immutable once submitted; the executor consumes it exactly once.
type Request struct {
	Name   string                 `json:"command"`
	Params map[string]interface{} `json:"params"`
}

// Outcome is the single, final result of executing one Request. Exactly
// one of Result or Error is set.
type Outcome struct {
	Success bool                   `json:"success"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   *Error                 `json:"error,omitempty"`
}

// OK wraps a handler result as a successful outcome.
func OK(result map[string]interface{}) Outcome {
	return Outcome{Success: true, Result: result}
}

// Fail builds a failed outcome with a structured error.
func Fail(kind Kind, format string, args ...interface{}) Outcome {
	return Outcome{Success: false, Error: NewError(kind, format, args...)}
}

// FailErr builds a failed outcome from an error, preserving the kind when
// the error is a structured *Error and wrapping everything else as a
// BackendError.
func FailErr(err error) Outcome {
	if ce, ok := AsError(err); ok {
		return Outcome{Success: false, Error: ce}
	}
	return Outcome{Success: false, Error: NewError(KindBackendError, "%s", err.Error())}
}

// Handler executes one named command against whatever backend it was
// constructed with. Execute receives validated parameters: declared keys
// are type-checked with defaults substituted, undeclared keys pass through
// untouched.
type Handler interface {
	Name() string
	Contract() *Contract
	Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)
}

// Reversible is the optional compensation capability. Revert receives the
// validated params and the result of the original successful execution and
// undoes its effect best-effort. Handlers that cannot compensate simply do
// not implement this.
type Reversible interface {
	Revert(ctx context.Context, params, result map[string]interface{}) error
}
