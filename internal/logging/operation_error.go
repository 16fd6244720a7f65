package logging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// OperationError records which operation failed, and for which request.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fields renders the error for a log entry, with the error itself last.
func (e *OperationError) Fields() []zap.Field {
	fields := []zap.Field{zap.String("operation", e.Operation)}
	if e.RequestID != "" {
		fields = append(fields, zap.String("request_id", e.RequestID))
	}
	return append(fields, zap.Error(e))
}

// NewOperationError returns nil when err is nil. An *OperationError is not
// wrapped again, but gains requestID if it had none.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	if opErr, ok := err.(*OperationError); ok {
		if opErr.RequestID == "" && requestID != "" {
			return &OperationError{Operation: opErr.Operation, RequestID: requestID, Err: opErr.Err}
		}
		return opErr
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// ErrorFields logs err with its operation context when it has one.
func ErrorFields(err error) []zap.Field {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		fields := opErr.Fields()
		fields[len(fields)-1] = zap.Error(err)
		return fields
	}
	return []zap.Field{zap.Error(err)}
}
