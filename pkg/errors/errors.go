// Package errors provides the error taxonomy of the reconstruction pipeline
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrData                   = errors.New("petsys: invalid input data")
	ErrConfiguration          = errors.New("petsys: invalid configuration")
	ErrUnsupportedCombination = errors.New("petsys: unsupported geometry/algorithm combination")
)

// DataError reports missing or malformed event data
type DataError struct {
	Field string
	Msg   string
}

func (e *DataError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("data error: %s", e.Msg)
	}
	return fmt.Sprintf("data error: field %q: %s", e.Field, e.Msg)
}

// Is reports whether target is ErrData
func (e *DataError) Is(target error) bool {
	return target == ErrData
}

// NewDataError creates a new data error
func NewDataError(field, format string, args ...any) *DataError {
	return &DataError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports an invalid parameter value
type ConfigurationError struct {
	Param string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Param, e.Msg)
}

// Is reports whether target is ErrConfiguration
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(param, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Param: param, Msg: fmt.Sprintf(format, args...)}
}

// UnsupportedCombinationError reports an algorithm requested for a
// geometry that cannot support it
type UnsupportedCombinationError struct {
	Geometry  string
	Algorithm string
}

func (e *UnsupportedCombinationError) Error() string {
	return fmt.Sprintf("algorithm %s is not supported by %s geometry", e.Algorithm, e.Geometry)
}

// Is reports whether target is ErrUnsupportedCombination
func (e *UnsupportedCombinationError) Is(target error) bool {
	return target == ErrUnsupportedCombination
}

// NewUnsupportedCombinationError creates a new unsupported combination error
func NewUnsupportedCombinationError(geometry, algorithm string) *UnsupportedCombinationError {
	return &UnsupportedCombinationError{Geometry: geometry, Algorithm: algorithm}
}
