// internal/attr/attr.go
package attr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Source when no attributes apply to a path
// at all. Callers treat it as "use defaults", not as a failure.
var ErrNotFound = errors.New("no attributes for path")

type state int

const (
	stateUnset state = iota
	stateTrue
	stateFalse
	stateText
)

// Value is one attribute value: unset, boolean true, boolean false, or a
// literal string. The zero Value is unset.
type Value struct {
	state state
	str   string
}

var (
	ValueUnset = Value{}
	ValueTrue  = Value{state: stateTrue}
	ValueFalse = Value{state: stateFalse}
)

// Text builds a literal string value.
func Text(s string) Value {
	return Value{state: stateText, str: s}
}

func (v Value) IsUnset() bool { return v.state == stateUnset }
func (v Value) IsTrue() bool  { return v.state == stateTrue }
func (v Value) IsFalse() bool { return v.state == stateFalse }

// Text returns the literal string and true when the value is a string.
func (v Value) Text() (string, bool) {
	if v.state != stateText {
		return "", false
	}
	return v.str, true
}

func (v Value) String() string {
	switch v.state {
	case stateTrue:
		return "true"
	case stateFalse:
		return "false"
	case stateText:
		return v.str
	}
	return "unset"
}

// MarshalJSON encodes the value as JSON true, false, a string, or null
// for unset.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.state {
	case stateTrue:
		return []byte("true"), nil
	case stateFalse:
		return []byte("false"), nil
	case stateText:
		return json.Marshal(v.str)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = ValueUnset
	case bool:
		if t {
			*v = ValueTrue
		} else {
			*v = ValueFalse
		}
	case string:
		*v = Text(t)
	default:
		return fmt.Errorf("invalid attribute value: %s", data)
	}
	return nil
}

// Parse turns the CLI/storage spelling of a value into a Value. The
// spellings "true" and "false" become booleans; everything else is a
// literal string.
func Parse(s string) Value {
	switch s {
	case "true":
		return ValueTrue
	case "false":
		return ValueFalse
	}
	return Text(s)
}

// Source answers attribute queries for paths.
type Source interface {
	// Lookup returns one value per requested name, in order. It returns
	// ErrNotFound when no attributes apply to the path; requested names
	// that simply have no value come back unset.
	Lookup(path string, names []string) ([]Value, error)
}
