// Package model provides domain model for httpvfs
package model

// Header is the ordered list of column names of a result set.
type Header []string

// NewHeader create new Header.
func NewHeader(h []string) Header {
	return Header(h)
}

// Equal compare Header.
func (h Header) Equal(h2 Header) bool {
	if len(h) != len(h2) {
		return false
	}
	for i, v := range h {
		if v != h2[i] {
			return false
		}
	}
	return true
}

// Row is one result row in column order.
type Row []any

// Object is one result row keyed by column name.
type Object map[string]any

// ResultSet is the columnar result of one statement, the shape the engine
// returns from exec.
type ResultSet struct {
	Columns Header `json:"columns"`
	Values  []Row  `json:"values"`
}

// Len returns the number of rows.
func (rs ResultSet) Len() int {
	return len(rs.Values)
}

// Objects converts the result set into one mapping per row.
func (rs ResultSet) Objects() []Object {
	objects := make([]Object, 0, len(rs.Values))
	for _, row := range rs.Values {
		o := make(Object, len(rs.Columns))
		for i, col := range rs.Columns {
			if i < len(row) {
				o[col] = row[i]
			}
		}
		objects = append(objects, o)
	}
	return objects
}

// ToObjects converts the first result set of a statement batch into one
// mapping per row. Further result sets are ignored; no result set yields an
// empty slice.
func ToObjects(sets []ResultSet) []Object {
	if len(sets) == 0 {
		return []Object{}
	}
	return sets[0].Objects()
}
