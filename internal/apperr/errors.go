// Package apperr defines the error taxonomy shared by the ingestion pipeline.
//
// FetchError is source-level: it aborts one source's contribution to a run.
// ParseError, ValidationError and StoreError are record-level: they are
// recorded in the run summary and processing continues with the next record.
package apperr

import "fmt"

// FetchError wraps a network, HTTP status or timeout failure for one source.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError marks a text fragment that did not match any date/time pattern,
// or markup that could not be parsed. The offending input is kept for the
// summary.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

// ValidationError marks a normalized record missing a required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %s: %s", e.Field, e.Reason)
}

// StoreError wraps a persistence failure scoped to a single record.
type StoreError struct {
	Fingerprint string
	Err         error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: record %s: %v", e.Fingerprint, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Kind discriminates the taxonomy for metrics and log labels.
func Kind(err error) string {
	switch err.(type) {
	case *FetchError:
		return "fetch"
	case *ParseError:
		return "parse"
	case *ValidationError:
		return "validation"
	case *StoreError:
		return "store"
	default:
		return "other"
	}
}
