package pg

import "fmt"

// Scan applies decode to each value in row i, calling decode once per
// column in column order. decode receives the column metadata and raw
// bytes (nil for SQL NULL) and returns an error to abort the scan.
func (r *Rows) Scan(i int, decode func(col Column, raw []byte) error) error {
	if i < 0 || i >= len(r.Values) {
		return fmt.Errorf("pg: row index %d out of range (%d rows)", i, len(r.Values))
	}
	row := r.Values[i]
	if len(row) != len(r.Columns) {
		return fmt.Errorf("pg: row has %d values but RowDescription declared %d columns", len(row), len(r.Columns))
	}
	for ci, col := range r.Columns {
		if err := decode(col, row[ci]); err != nil {
			return fmt.Errorf("pg: column %q: %w", col.Name, err)
		}
	}
	return nil
}

// ScanInto decodes column colIdx of row i into a TypedDecoder, verifying its
// declared PgType matches the column's OID.
func (r *Rows) ScanInto(i, colIdx int, dst TypedDecoder) error {
	if i < 0 || i >= len(r.Values) {
		return fmt.Errorf("pg: row index %d out of range (%d rows)", i, len(r.Values))
	}
	if colIdx < 0 || colIdx >= len(r.Columns) {
		return fmt.Errorf("pg: column index %d out of range (%d columns)", colIdx, len(r.Columns))
	}
	col := r.Columns[colIdx]
	if col.OID != dst.PgType() {
		return fmt.Errorf("pg: column %q has OID %d, decoder wants %d", col.Name, col.OID, dst.PgType())
	}
	return dst.DecodePg(r.Values[i][colIdx])
}

// Len is the number of rows returned.
func (r *Rows) Len() int { return len(r.Values) }
