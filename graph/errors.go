package graph

import "errors"

// Error codes carried by EngineError.
const (
	CodeMissingReducer   = "MISSING_REDUCER"
	CodeMissingStore     = "MISSING_STORE"
	CodeNoStartNode      = "NO_START_NODE"
	CodeNodeNotFound     = "NODE_NOT_FOUND"
	CodeDuplicateNode    = "DUPLICATE_NODE"
	CodeMaxStepsExceeded = "MAX_STEPS_EXCEEDED"
	CodeNodeTimeout      = "NODE_TIMEOUT"
	CodeNoRoute          = "NO_ROUTE"
	CodeStoreError       = "STORE_ERROR"
	CodeInvalidOption    = "INVALID_OPTION"
)

// ErrMaxStepsExceeded is matched by errors.Is on an EngineError with code
// MAX_STEPS_EXCEEDED.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// EngineError represents an error from Engine operations.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Is lets errors.Is match sentinel errors by code.
func (e *EngineError) Is(target error) bool {
	return target == ErrMaxStepsExceeded && e.Code == CodeMaxStepsExceeded
}

// IsCode reports whether err is an EngineError with the given code.
func IsCode(err error, code string) bool {
	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr.Code == code
	}
	return false
}
