package vm

import "fmt"

// DuplicateModelError is returned when a script declares a model twice.
type DuplicateModelError struct {
	Script string
}

func (e *DuplicateModelError) Error() string {
	return fmt.Sprintf("%s: only one .llm statement allowed per script", e.Script)
}

// StatementError wraps a fatal error with the statement it occurred on.
type StatementError struct {
	Seq     int
	Keyword string
	Err     error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %02d %s: %v", e.Seq, e.Keyword, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }
