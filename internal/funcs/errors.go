package funcs

import "fmt"

// UnknownFunctionError is returned by Call for a name no executable
// claimed. Recoverable inside the tool-invocation loop.
type UnknownFunctionError struct {
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function: %s", e.Name)
}

// FunctionError is a tool invocation that failed: non-zero exit, timeout,
// or unencodable arguments. Detail carries the executable's stderr when
// there was any. Recoverable inside the tool-invocation loop.
type FunctionError struct {
	Name   string
	Detail string
	Err    error
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function %s failed: %s", e.Name, e.Detail)
}

func (e *FunctionError) Unwrap() error { return e.Err }
