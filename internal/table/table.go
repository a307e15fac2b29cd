// Package table is a minimal typed row view standing in for the
// external tabular container (spec.md §1 treats CSV ingestion and the
// columnar container as an external collaborator; this package fixes
// only the shape the engine needs to consume and produce rows).
package table

// Row is a single record keyed by column name. Engine code never cares
// about column order, only name-based lookup, so a map is sufficient
// and keeps passthrough columns (spec.md §6: "all additional columns
// are passed through ... prefixed gps_") trivial to carry.
type Row map[string]any

// Table is an ordered sequence of rows sharing (loosely) a column set.
type Table struct {
	Rows []Row
}

func New() *Table { return &Table{Rows: make([]Row, 0)} }

func (t *Table) Append(r Row) { t.Rows = append(t.Rows, r) }

func (t *Table) Len() int { return len(t.Rows) }

// Column returns ok=false if the row does not have the given key at
// all (as opposed to having it set to a zero value).
func (r Row) Column(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// Float64 fetches a column coerced to float64; ok is false if the
// column is missing or not numeric.
func (r Row) Float64(name string) (float64, bool) {
	v, ok := r[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// String fetches a column coerced to string; ok is false if missing.
func (r Row) String(name string) (string, bool) {
	v, ok := r[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WithPrefix returns a copy of r with every key prefixed by prefix
// (for example gps_<original-name>).
func (r Row) WithPrefix(prefix string) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[prefix+k] = v
	}
	return out
}

// Merge returns a new row containing the union of r and other, with
// other's keys taking precedence on conflict.
func (r Row) Merge(other Row) Row {
	out := make(Row, len(r)+len(other))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
