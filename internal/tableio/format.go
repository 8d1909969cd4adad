package tableio

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/reservations"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// FormatFromName picks a format from a file name extension.
func FormatFromName(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return ParseFormat(ext)
}

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// ContentType returns the MIME type served for downloads.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Load parses r according to the extension of name.
func Load(name string, r io.Reader) (reservations.RawTable, error) {
	format, err := FormatFromName(name)
	if err != nil {
		return reservations.RawTable{}, err
	}
	switch format {
	case FormatXLSX:
		return LoadXLSX(r)
	case FormatJSON:
		return LoadJSON(r)
	default:
		return LoadCSV(r)
	}
}

// Write renders the augmented table in the given format.
func Write(w io.Writer, format Format, table *reservations.Table) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, table)
	case FormatXLSX:
		return WriteXLSX(w, table)
	case FormatJSON:
		return WriteJSON(w, table)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
