package logging

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrPanic marks an error produced by a recovered panic.
var ErrPanic = errors.New("panic recovered")

// RecoveryHandler turns panics into errors and logs them with a stack trace.
type RecoveryHandler struct {
	Component string
	Logger    *Logger
	OnPanic   func(err any, stack string)
}

// NewRecoveryHandler creates a recovery handler for a component
func NewRecoveryHandler(component string, logger *Logger) *RecoveryHandler {
	if logger == nil {
		logger = New(component)
	}
	return &RecoveryHandler{
		Component: component,
		Logger:    logger,
	}
}

// WrapError executes fn with panic recovery, returning error on panic
func (r *RecoveryHandler) WrapError(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = r.handlePanic(rec, string(debug.Stack()))
		}
	}()
	return fn()
}

// handlePanic logs the panic and calls the custom handler
func (r *RecoveryHandler) handlePanic(rec any, stack string) error {
	err := fmt.Errorf("%w in %s: %v", ErrPanic, r.Component, rec)

	r.Logger.Error("panic_recovered", map[string]any{
		"stack":     stack,
		"component": r.Component,
	}, err)

	if r.OnPanic != nil {
		r.OnPanic(rec, stack)
	}
	return err
}
