package kvkey

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Render formats a key so that ParseQuery reads it back as the same key.
//
// Text parts are always quoted. When a part has no comma-separated form (text
// containing a comma, negative or non-finite numbers) the key is rendered as a
// JSON array instead, provided every part is JSON-representable. Keys mixing
// such parts with bytes or big integers have no faithful query form; they are
// rendered comma-separated on a best-effort basis.
func Render(key Key) string {
	tokens := make([]string, len(key))
	exact := true
	for i, p := range key {
		tok, ok := token(p)
		tokens[i] = tok
		exact = exact && ok
	}
	if exact {
		return strings.Join(tokens, ",")
	}
	if s, ok := renderJSON(key); ok {
		return s
	}
	return strings.Join(tokens, ",")
}

// RenderPart formats a single part the way Render does inside a key.
func RenderPart(p Part) string {
	tok, _ := token(p)
	return tok
}

func token(p Part) (string, bool) {
	switch v := p.(type) {
	case String:
		return `"` + string(v) + `"`, !strings.Contains(string(v), ",")
	case Number:
		s := FormatNumber(float64(v))
		return s, reNumber.MatchString(s)
	case BigInt:
		i := v.Int()
		return i.String() + "n", i.Sign() >= 0
	case Bytes:
		return "0x" + strings.ToUpper(hex.EncodeToString(v)), len(v) > 0
	case Bool:
		return strconv.FormatBool(bool(v)), true
	}
	return "", false
}

func renderJSON(key Key) (string, bool) {
	values := make([]any, len(key))
	for i, p := range key {
		switch v := p.(type) {
		case String:
			values[i] = string(v)
		case Number:
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return "", false
			}
			values[i] = float64(v)
		case Bool:
			values[i] = bool(v)
		default:
			return "", false
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(values); err != nil {
		return "", false
	}
	return strings.TrimSuffix(buf.String(), "\n"), true
}

// FormatNumber renders a float the way a JavaScript number prints for the
// common cases: integers without a fraction, shortest round-trip otherwise.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
