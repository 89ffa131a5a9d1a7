// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for trace failures
var (
	ErrConnection        = errors.New("device connection failed")
	ErrNotFound          = errors.New("entry not found")
	ErrTargetUnreachable = errors.New("target unreachable")
	ErrLoopDetected      = errors.New("path loops back to a visited device")
	ErrHopLimit          = errors.New("hop limit reached")
	ErrValidationFailed  = errors.New("validation failed")
)

// ConnectionError is returned when a session to a device cannot be opened.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Address, e.Err)
}

// Unwrap exposes both the sentinel and the underlying transport error, so
// callers can match ErrConnection as well as context.DeadlineExceeded.
func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// NewConnectionError creates a connection error
func NewConnectionError(address string, err error) *ConnectionError {
	return &ConnectionError{Address: address, Err: err}
}

// LookupError is a specific device lookup that had no matching entry.
type LookupError struct {
	Device string // management address or hostname
	Lookup string // "arp", "mac-table", "lacp", ...
	Key    string // what was looked up
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup for %s on %s: no matching entry", e.Lookup, e.Key, e.Device)
}

func (e *LookupError) Unwrap() error {
	return ErrNotFound
}

// NewLookupError creates a lookup error
func NewLookupError(device, lookup, key string) *LookupError {
	return &LookupError{Device: device, Lookup: lookup, Key: key}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
