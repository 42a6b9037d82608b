package model

import (
	"errors"
	"fmt"
)

// DataMissingError reports that a test lacks data an operator has to supply
// by hand (typically an item without a category). Only the affected test is
// aborted.
type DataMissingError struct {
	Administrator string
	Test          string
	Category      string
	Item          string
	Reason        string
}

func (e *DataMissingError) Error() string {
	msg := fmt.Sprintf("test %q (administrator %q): %s", e.Test, e.Administrator, e.Reason)
	if e.Category != "" {
		msg += fmt.Sprintf(" [category %q]", e.Category)
	}
	if e.Item != "" {
		msg += fmt.Sprintf(" [item %q]", e.Item)
	}
	return msg + "; correct the extracted item table and rerun"
}

// SchemaMismatchError reports an upstream table without an expected column.
// The whole run stops: the source format has changed.
type SchemaMismatchError struct {
	Table  string
	Column string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("table %q has no %q column; the upstream export format has changed", e.Table, e.Column)
}

// IsDataMissing reports whether err wraps a DataMissingError.
func IsDataMissing(err error) bool {
	var dm *DataMissingError
	return errors.As(err, &dm)
}

// IsSchemaMismatch reports whether err wraps a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var sm *SchemaMismatchError
	return errors.As(err, &sm)
}
