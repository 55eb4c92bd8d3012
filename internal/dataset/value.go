package dataset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind string

const (
	KindNumber  Kind = "number"
	KindText    Kind = "text"
	KindBool    Kind = "bool"
	KindMissing Kind = "missing"
)

// ParseKind converts a user-supplied type name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindNumber:
		return KindNumber, nil
	case KindText:
		return KindText, nil
	case KindBool:
		return KindBool, nil
	case KindMissing:
		return KindMissing, nil
	default:
		return "", fmt.Errorf("unknown type %q", s)
	}
}

// Value is a tagged-variant cell scalar: a number, text, boolean, or missing.
// The zero Value is missing.
type Value struct {
	kind Kind
	num  float64
	text string
	b    bool
}

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Text(s string) Value    { return Value{kind: KindText, text: s} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Missing() Value         { return Value{kind: KindMissing} }

// Kind returns the variant tag. The zero Value reports KindMissing.
func (v Value) Kind() Kind {
	if v.kind == "" {
		return KindMissing
	}
	return v.kind
}

func (v Value) IsMissing() bool { return v.Kind() == KindMissing }

// Num returns the numeric payload. Only meaningful when Kind is KindNumber.
func (v Value) Num() float64 { return v.num }

// Text returns the text payload. Only meaningful when Kind is KindText.
func (v Value) Text() string { return v.text }

// Bool returns the boolean payload. Only meaningful when Kind is KindBool.
func (v Value) Bool() bool { return v.b }

// Equal reports whether two values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

// Key returns a canonical encoding used for duplicate detection and mode
// counting. Distinct values map to distinct keys.
func (v Value) Key() string {
	switch v.Kind() {
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return "t:" + v.text
	case KindBool:
		if v.b {
			return "b:1"
		}
		return "b:0"
	default:
		return "m:"
	}
}

// String renders the value for CSV cells and display. Missing renders empty.
func (v Value) String() string {
	switch v.Kind() {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON encodes numbers, text, and booleans natively and missing as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind() {
	case KindNumber:
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number, string, boolean, or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = Missing()
	case float64:
		*v = Number(t)
	case string:
		*v = Text(t)
	case bool:
		*v = Bool(t)
	default:
		return fmt.Errorf("unsupported cell value %s", data)
	}
	return nil
}

// Coerce converts a value to the target kind. Missing stays missing under
// every coercion. Returns ErrTypeMismatch when the payload cannot represent
// the target kind (e.g. text "abc" to number).
func Coerce(v Value, target Kind) (Value, error) {
	if v.IsMissing() || v.Kind() == target {
		return v, nil
	}
	switch target {
	case KindText:
		return Text(v.String()), nil
	case KindNumber:
		switch v.Kind() {
		case KindBool:
			if v.b {
				return Number(1), nil
			}
			return Number(0), nil
		case KindText:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
			if err != nil {
				return Value{}, fmt.Errorf("%w: cannot convert %q to number", ErrTypeMismatch, v.text)
			}
			return Number(f), nil
		}
	case KindBool:
		switch v.Kind() {
		case KindNumber:
			if v.num == 0 {
				return Bool(false), nil
			}
			if v.num == 1 {
				return Bool(true), nil
			}
		case KindText:
			if b, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(v.text))); err == nil {
				return Bool(b), nil
			}
		}
	}
	return Value{}, fmt.Errorf("%w: cannot convert %s to %s", ErrTypeMismatch, v.Kind(), target)
}
