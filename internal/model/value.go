package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates the payload of a Value.
type ValueKind uint8

const (
	KindNumber ValueKind = iota
	KindBool
	KindText
)

// Value is a tagged union of the three payload types a recorded change may
// carry. It marshals to the bare JSON value (number, boolean or string) so
// exported documents stay compact and type information survives a round trip
// through serialization.
type Value struct {
	Kind ValueKind

	Num  float64
	Bool bool
	Text string
}

// NumberValue wraps a float64.
func NumberValue(v float64) Value {
	return Value{Kind: KindNumber, Num: v}
}

// IntValue wraps an integer quantity as a number Value.
func IntValue(v int) Value {
	return Value{Kind: KindNumber, Num: float64(v)}
}

// BoolValue wraps a bool.
func BoolValue(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

// TextValue wraps a string.
func TextValue(v string) Value {
	return Value{Kind: KindText, Text: v}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	default:
		return v.Text == o.Text
	}
}

// String renders the payload for logs and status messages.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Text
	}
}

// MarshalJSON emits the bare JSON value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Text)
	}
}

// UnmarshalJSON infers the kind from the JSON type of the payload.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch t := raw.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return err
		}
		*v = NumberValue(f)
	case bool:
		*v = BoolValue(t)
	case string:
		*v = TextValue(t)
	default:
		return fmt.Errorf("unsupported change value %q", string(data))
	}
	return nil
}
