package errors

import (
	"fmt"
)

// ErrorType classifies analysis errors by where in the pipeline they
// originate. Structural errors are the only request-fatal class; the
// rest stay contained to the item, formula, or cell that caused them.
type ErrorType string

const (
	ErrTypeStructural ErrorType = "STRUCTURAL" // no period header, no selected sheet
	ErrTypeMatching   ErrorType = "MATCHING"   // item present on one side only
	ErrTypeFormula    ErrorType = "FORMULA"    // unparseable formula, degraded to leaf
	ErrTypeGraph      ErrorType = "GRAPH"      // circular reference, depth or timeout bound
	ErrTypeData       ErrorType = "DATA"       // non-numeric value where a number was expected
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeConfig     ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithLocation pins the error to the spreadsheet location that caused
// it, so callers can point the user at the offending cell.
func (e *AppError) WithLocation(sheet string, row, col int) *AppError {
	e.WithContext("sheet", sheet)
	if row > 0 {
		e.WithContext("row", row)
	}
	if col > 0 {
		e.WithContext("col", col)
	}
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Helper functions for common error types

// NewStructuralError creates a sheet structure error
func NewStructuralError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStructural, message, cause)
}

// NewFormulaError creates a formula parsing error
func NewFormulaError(message string, cause error) *AppError {
	return NewAppError(ErrTypeFormula, message, cause)
}

// NewGraphError creates a dependency graph error
func NewGraphError(message string, cause error) *AppError {
	return NewAppError(ErrTypeGraph, message, cause)
}

// NewDataError creates a cell data error
func NewDataError(message string) *AppError {
	return NewAppError(ErrTypeData, message, nil)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
