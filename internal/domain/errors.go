package domain

import (
	"errors"
	"fmt"
)

// ErrCacheMiss signals that a required acquisition artifact was never
// produced. Processing records the unit as skipped and continues; it never
// triggers acquisition to fill the gap.
var ErrCacheMiss = errors.New("acquisition cache artifact missing")

// ConfigurationError is fatal: the coordinate or boundary source cannot be
// loaded, or no usable common reference system exists. It aborts the mapping
// build and with it the whole run.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ConfigErr wraps err as a ConfigurationError for the named setup step.
func ConfigErr(op string, err error) error {
	return &ConfigurationError{Op: op, Err: err}
}

// AcquisitionError is an external fetch failure for one (date, variable)
// unit. It is recorded in the run summary; other units continue.
type AcquisitionError struct {
	Date     Date
	Variable string
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s %s: %v", e.Variable, e.Date, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// AggregationInputError means a cached artifact does not carry the columns
// processing expects. Fatal for that unit only.
type AggregationInputError struct {
	Path string
	Err  error
}

func (e *AggregationInputError) Error() string {
	return fmt.Sprintf("aggregation input %s: %v", e.Path, e.Err)
}

func (e *AggregationInputError) Unwrap() error { return e.Err }
