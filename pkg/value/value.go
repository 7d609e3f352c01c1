// Package value classifies stored values for editing and validates and
// converts edited text back into typed values.
package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"

	"kvview/pkg/kvkey"
)

// Type is the declared type of an edited value.
type Type string

const (
	TypeString Type = "string"
	TypeNumber Type = "number"
	TypeJSON   Type = "json"
)

var ErrUnknownType = errors.New("unknown type")

// Value is a stored value tagged once with its editing type, together with
// its editable text.
type Value struct {
	Type Type
	Text string
}

// Classify tags a decoded store value. Structured values (maps, slices, byte
// strings, null, booleans) are json, numbers are number, everything else is
// string.
func Classify(v any) Value {
	switch t := v.(type) {
	case string:
		return Value{Type: TypeString, Text: t}
	case float64:
		return Value{Type: TypeNumber, Text: kvkey.FormatNumber(t)}
	case float32, int, int32, int64, uint32, uint64:
		return Value{Type: TypeNumber, Text: fmt.Sprint(t)}
	case *big.Int:
		return Value{Type: TypeString, Text: t.String()}
	case nil, bool, []byte, []any, map[string]any:
		return Value{Type: TypeJSON, Text: indentJSON(t)}
	default:
		return Value{Type: TypeString, Text: fmt.Sprint(t)}
	}
}

func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}

// Result of validating edited text against a declared type.
type Result struct {
	Valid  bool
	Reason string
}

// Validate checks text against the declared type. A nil text means the value
// is absent.
func Validate(text *string, t Type) Result {
	switch t {
	case TypeString:
		return Result{Valid: true, Reason: "string is always valid"}
	case TypeNumber:
		if text == nil {
			return Result{Reason: "number cannot be null"}
		}
		if _, ok := leadingNumber(*text); !ok {
			return Result{Reason: "invalid number"}
		}
		return Result{Valid: true, Reason: "OK"}
	case TypeJSON:
		if text == nil {
			return Result{Reason: "json cannot be null"}
		}
		if !json.Valid([]byte(*text)) {
			return Result{Reason: "invalid json"}
		}
		return Result{Valid: true, Reason: "OK"}
	default:
		return Result{Reason: "unknown valueType"}
	}
}

// Convert turns validated text into the value to store: the text itself for
// string, the leading numeric portion for number, the decoded document for
// json.
func Convert(text string, t Type) (any, error) {
	switch t {
	case TypeString:
		return text, nil
	case TypeNumber:
		f, ok := leadingNumber(text)
		if !ok {
			return nil, fmt.Errorf("convert %q to number: invalid number", text)
		}
		return f, nil
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, fmt.Errorf("convert to json: %w", err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

var reLeadingNumber = regexp.MustCompile(`^[ \t\n\r\f\v]*([+-]?(?:Infinity|[0-9]+(?:\.[0-9]*)?(?:[eE][+-]?[0-9]+)?|\.[0-9]+(?:[eE][+-]?[0-9]+)?))`)

// leadingNumber parses the longest numeric prefix of s after leading
// whitespace, so "12px" yields 12 and "px" fails.
func leadingNumber(s string) (float64, bool) {
	m := reLeadingNumber.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num := m[1]
	switch num {
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		// out of range values still parse to ±Inf with ErrRange
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return f, true
		}
		return 0, false
	}
	return f, true
}
