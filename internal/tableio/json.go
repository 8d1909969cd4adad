package tableio

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mdhawan-acm/pickleball-reservation-insights/internal/reservations"
)

// LoadJSON reads an array of record objects. Column order follows first
// appearance; numbers are kept in their literal form and null values are null
// cells.
func LoadJSON(r io.Reader) (reservations.RawTable, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	if err := expectDelim(decoder, '['); err != nil {
		return reservations.RawTable{}, err
	}

	var table reservations.RawTable
	seen := make(map[string]struct{})
	for decoder.More() {
		if err := expectDelim(decoder, '{'); err != nil {
			return reservations.RawTable{}, err
		}
		row := make(reservations.RawRecord)
		for decoder.More() {
			token, err := decoder.Token()
			if err != nil {
				return reservations.RawTable{}, fmt.Errorf("read json key: %w", err)
			}
			key, ok := token.(string)
			if !ok {
				return reservations.RawTable{}, fmt.Errorf("unexpected json token %v", token)
			}
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				table.Columns = append(table.Columns, key)
			}

			var value any
			if err := decoder.Decode(&value); err != nil {
				return reservations.RawTable{}, fmt.Errorf("read json value for %q: %w", key, err)
			}
			switch v := value.(type) {
			case nil:
			case string:
				row[key] = v
			case json.Number:
				row[key] = v.String()
			case bool:
				row[key] = fmt.Sprint(v)
			default:
				return reservations.RawTable{}, fmt.Errorf("column %q holds a nested value", key)
			}
		}
		if err := expectDelim(decoder, '}'); err != nil {
			return reservations.RawTable{}, err
		}
		table.Rows = append(table.Rows, row)
	}
	if err := expectDelim(decoder, ']'); err != nil {
		return reservations.RawTable{}, err
	}
	return table, nil
}

// WriteJSON writes the table in its record-array form.
func WriteJSON(w io.Writer, table *reservations.Table) error {
	payload, err := table.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	_, err = w.Write(payload)
	return err
}

func expectDelim(decoder *json.Decoder, want json.Delim) error {
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("read json: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q in json, got %v", want, token)
	}
	return nil
}
