// Package errors provides the archive's error taxonomy
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrIdentityIndeterminate = errors.New("archive: patient identity indeterminate, no patient id")
	ErrNotFound              = errors.New("archive: entity not found")
	ErrDuplicateInstance     = errors.New("archive: instance already stored")
)

// ValidationError represents a malformed query context or request
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Msg)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Msg)
}

// NewValidationError creates a new validation error
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// AmbiguousPatientError is returned when more than one stored patient matches
// an identifier and the candidates cannot be narrowed to one.
type AmbiguousPatientError struct {
	PatientID  string
	Candidates int
}

func (e *AmbiguousPatientError) Error() string {
	return fmt.Sprintf("ambiguous patient id %s: %d matching patients", e.PatientID, e.Candidates)
}

// NewAmbiguousPatientError creates a new ambiguity error
func NewAmbiguousPatientError(patientID string, candidates int) *AmbiguousPatientError {
	return &AmbiguousPatientError{PatientID: patientID, Candidates: candidates}
}

// NotFoundError represents an entity that does not exist (any more)
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new not-found error
func NewNotFoundError(entity string, key interface{}) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

// StoreFailure wraps an error from the relational store
type StoreFailure struct {
	Op  string
	Err error
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreFailure) Unwrap() error {
	return e.Err
}

// NewStoreFailure creates a new store failure
func NewStoreFailure(op string, err error) *StoreFailure {
	return &StoreFailure{Op: op, Err: err}
}

// DecodeError represents an attribute blob that could not be decoded
type DecodeError struct {
	Entity string
	Key    string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %s attributes: %v", e.Entity, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NewDecodeError creates a new decode error
func NewDecodeError(entity string, key interface{}, err error) *DecodeError {
	return &DecodeError{Entity: entity, Key: fmt.Sprint(key), Err: err}
}

// DuplicateInstanceError is returned when an instance UID is already stored
type DuplicateInstanceError struct {
	SOPInstanceUID string
}

func (e *DuplicateInstanceError) Error() string {
	return fmt.Sprintf("instance %s already stored", e.SOPInstanceUID)
}

func (e *DuplicateInstanceError) Unwrap() error {
	return ErrDuplicateInstance
}

// NewDuplicateInstanceError creates a new duplicate instance error
func NewDuplicateInstanceError(sopInstanceUID string) *DuplicateInstanceError {
	return &DuplicateInstanceError{SOPInstanceUID: sopInstanceUID}
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAmbiguousPatient checks if an error is an ambiguity error
func IsAmbiguousPatient(err error) bool {
	var e *AmbiguousPatientError
	return errors.As(err, &e)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}
