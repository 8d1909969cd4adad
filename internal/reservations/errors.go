package reservations

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumn marks input tables lacking a required column.
	ErrMissingColumn = errors.New("missing column")
	// ErrMalformedCurrency marks Fees values that do not parse to a non-negative decimal.
	ErrMalformedCurrency = errors.New("malformed currency")
	// ErrMalformedNumber marks Registrants or Duration values that fail type coercion.
	ErrMalformedNumber = errors.New("malformed number")
	// ErrEmptyDataset marks averages requested over zero rows.
	ErrEmptyDataset = errors.New("empty dataset")
)

type MissingColumnError struct {
	Columns []string
}

func (e MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column(s): %s", strings.Join(e.Columns, ", "))
}

func (e MissingColumnError) Unwrap() error {
	return ErrMissingColumn
}

// MalformedCurrencyError reports the 1-based data row holding the bad Fees value.
type MalformedCurrencyError struct {
	Row   int
	Value string
}

func (e MalformedCurrencyError) Error() string {
	return fmt.Sprintf("row %d: Fees value %q is not a valid amount", e.Row, e.Value)
}

func (e MalformedCurrencyError) Unwrap() error {
	return ErrMalformedCurrency
}

type MalformedNumberError struct {
	Row    int
	Column string
	Value  string
}

func (e MalformedNumberError) Error() string {
	return fmt.Sprintf("row %d: %s value %q is not a valid number", e.Row, e.Column, e.Value)
}

func (e MalformedNumberError) Unwrap() error {
	return ErrMalformedNumber
}

type EmptyDatasetError struct{}

func (EmptyDatasetError) Error() string {
	return "dataset has no rows; average daily revenue is undefined"
}

func (EmptyDatasetError) Unwrap() error {
	return ErrEmptyDataset
}
