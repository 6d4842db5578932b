package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ChangeSet is an ordered field-name -> Value mapping describing the subset
// of a telemetry snapshot that must be persisted for one sampled tick.
// Insertion order is preserved; putting an already-present field overwrites
// its value without moving it.
type ChangeSet struct {
	entries []changeEntry
	index   map[string]int
}

type changeEntry struct {
	field string
	value Value
}

// Put records a field value, overwriting in place if the field is already
// queued for this tick.
func (cs *ChangeSet) Put(field string, value Value) {
	if cs.index == nil {
		cs.index = make(map[string]int)
	}
	if i, ok := cs.index[field]; ok {
		cs.entries[i].value = value
		return
	}
	cs.index[field] = len(cs.entries)
	cs.entries = append(cs.entries, changeEntry{field: field, value: value})
}

// Get returns the queued value for a field.
func (cs *ChangeSet) Get(field string) (Value, bool) {
	i, ok := cs.index[field]
	if !ok {
		return Value{}, false
	}
	return cs.entries[i].value, true
}

// Has reports whether a field is queued.
func (cs *ChangeSet) Has(field string) bool {
	_, ok := cs.index[field]
	return ok
}

// Len returns the number of queued fields.
func (cs *ChangeSet) Len() int {
	return len(cs.entries)
}

// Empty reports whether nothing is queued. Empty change sets are never
// persisted.
func (cs *ChangeSet) Empty() bool {
	return len(cs.entries) == 0
}

// Each visits the queued fields in insertion order.
func (cs *ChangeSet) Each(fn func(field string, value Value)) {
	for _, e := range cs.entries {
		fn(e.field, e.value)
	}
}

// MarshalJSON emits a JSON object whose keys appear in insertion order.
func (cs ChangeSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range cs.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving document key order.
func (cs *ChangeSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("changeset: expected JSON object, got %v", tok)
	}

	*cs = ChangeSet{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("changeset: non-string key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		cs.Put(key, v)
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
