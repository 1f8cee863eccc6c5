// Package header is an ordered HTTP header multi-map. Vault replays the signed
// STS request from the header set we hand it, so names keep their case and
// first-seen order, and repeated names keep every value.
package header

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type entry struct {
	name   string
	values []string
}

// Map is an ordered mapping from header name to one or more values. The zero
// value is an empty map ready to use. Names are case-sensitive.
type Map struct {
	entries []entry
	index   map[string]int
}

// New builds a Map from name/value pairs. It panics on an odd number of
// arguments, which is always a programming error.
func New(kv ...string) Map {
	if len(kv)%2 != 0 {
		panic("header.New: odd number of arguments")
	}

	var m Map
	for i := 0; i < len(kv); i += 2 {
		m.Add(kv[i], kv[i+1])
	}
	return m
}

// Add appends values to name, creating it at the end of the map if needed.
func (m *Map) Add(name string, values ...string) {
	if m.index == nil {
		m.index = make(map[string]int)
	}

	if i, ok := m.index[name]; ok {
		m.entries[i].values = append(m.entries[i].values, values...)
		return
	}

	m.index[name] = len(m.entries)
	m.entries = append(m.entries, entry{name: name, values: append([]string(nil), values...)})
}

// Values returns a copy of the values stored under name.
func (m Map) Values(name string) []string {
	i, ok := m.index[name]
	if !ok {
		return nil
	}
	return append([]string(nil), m.entries[i].values...)
}

// Get returns the first value stored under name, or "".
func (m Map) Get(name string) string {
	i, ok := m.index[name]
	if !ok || len(m.entries[i].values) == 0 {
		return ""
	}
	return m.entries[i].values[0]
}

// Has reports whether name is present.
func (m Map) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

// Names returns header names in insertion order.
func (m Map) Names() []string {
	names := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		names = append(names, e.name)
	}
	return names
}

// Len is the number of distinct names.
func (m Map) Len() int {
	return len(m.entries)
}

// ValueCount is the total number of values across all names.
func (m Map) ValueCount() int {
	n := 0
	for _, e := range m.entries {
		n += len(e.values)
	}
	return n
}

// Merge combines maps left to right. A name present in several maps keeps its
// first position and gets the values of every map appended in order; nothing
// is overwritten.
func Merge(maps ...Map) Map {
	var out Map
	for _, m := range maps {
		for _, e := range m.entries {
			out.Add(e.name, e.values...)
		}
	}
	return out
}

// HTTPHeader converts m for use on an *http.Request. Names are
// canonicalized, so names differing only in case share one entry.
func (m Map) HTTPHeader() http.Header {
	h := make(http.Header, len(m.entries))
	for _, e := range m.entries {
		for _, v := range e.values {
			h.Add(e.name, v)
		}
	}
	return h
}

// MarshalJSON emits an object in insertion order where every name maps to an
// array of strings, singletons included.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			buf.WriteByte(',')
		}

		name, err := json.Marshal(e.name)
		if err != nil {
			return nil, err
		}
		values := e.values
		if values == nil {
			values = []string{}
		}
		vals, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}

		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(vals)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of name to string array, keeping document
// order. A bare string value is accepted as a single-element array.
func (m *Map) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("header map must be a JSON object, got %v", tok)
	}

	var out Map
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected header name token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}

		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			var single string
			if err := json.Unmarshal(raw, &single); err != nil {
				return fmt.Errorf("header %q: values must be a string or array of strings", name)
			}
			values = []string{single}
		}
		out.Add(name, values...)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = out
	return nil
}
