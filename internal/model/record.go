package model

import "encoding/json"

// Record is one unit fetched from a streaming or batch provider (e.g. one
// news headline). Field order is preserved so column-oriented consumers see
// a stable column layout.
type Record struct {
	fields []string
	values map[string]any
}

// Set assigns a field, appending it to the field order on first assignment.
func (r *Record) Set(field string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.values[field] = value
}

// Get returns the value of a field.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// GetString returns the value of a field as a string, or "" if absent or
// not a string.
func (r Record) GetString(field string) string {
	s, _ := r.values[field].(string)
	return s
}

// Fields returns the field names in insertion order. The slice is a copy.
func (r Record) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.fields)
}

// FieldsEqual reports whether two records carry the same field names in the
// same order.
func (r Record) FieldsEqual(other Record) bool {
	if len(r.fields) != len(other.fields) {
		return false
	}
	for i, f := range r.fields {
		if other.fields[i] != f {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := Record{
		fields: make([]string, len(r.fields)),
		values: make(map[string]any, len(r.values)),
	}
	copy(out.fields, r.fields)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// WithSuffix returns a copy with every field name suffixed. An empty suffix
// is equivalent to Clone.
func (r Record) WithSuffix(suffix string) Record {
	if suffix == "" {
		return r.Clone()
	}
	var out Record
	for _, f := range r.fields {
		out.Set(f+suffix, r.values[f])
	}
	return out
}

// recordJSON is the serialized form; a plain JSON object would lose field
// order on the way back in.
type recordJSON struct {
	Fields []string       `json:"fields"`
	Values map[string]any `json:"values"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{Fields: r.fields, Values: r.values})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire recordJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.fields = wire.Fields
	r.values = wire.Values
	return nil
}
