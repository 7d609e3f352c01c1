// Package wire is the structure-preserving text encoding used on every hop of
// the protocol. A body is a JSON document plus annotations naming the paths
// whose values plain JSON cannot carry: byte strings, big integers and
// non-finite numbers.
//
//	{"json": {"key": ["user", "AQI="]}, "meta": {"values": [{"path": ["key", "1"], "type": "bytes"}]}}
//
// Decoded trees contain nil, bool, float64, string, []byte, *big.Int, []any
// and map[string]any.
package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"kvview/pkg/kvkey"
)

const (
	typeBytes  = "bytes"
	typeBigInt = "bigint"
	typeNumber = "number"
)

var (
	ErrUnsupportedType = errors.New("wire: unsupported type")
	ErrMalformed       = errors.New("wire: malformed body")
)

type envelope struct {
	JSON json.RawMessage `json:"json"`
	Meta *meta           `json:"meta,omitempty"`
}

type meta struct {
	Values []annotation `json:"values,omitempty"`
}

type annotation struct {
	Path []string `json:"path"`
	Type string   `json:"type"`
}

// Marshal encodes a value tree.
func Marshal(v any) ([]byte, error) {
	var m meta
	plain, err := flatten(v, nil, &m)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(plain); err != nil {
		return nil, fmt.Errorf("wire: encode json: %w", err)
	}

	env := envelope{JSON: bytes.TrimSuffix(buf.Bytes(), []byte("\n"))}
	if len(m.Values) > 0 {
		env.Meta = &m
	}
	return json.Marshal(env)
}

func flatten(v any, path []string, m *meta) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, json.Number:
		return t, nil
	case float64:
		return flattenFloat(t, path, m), nil
	case float32:
		return flattenFloat(float64(t), path, m), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case []byte:
		m.annotate(path, typeBytes)
		return base64.StdEncoding.EncodeToString(t), nil
	case *big.Int:
		if t == nil {
			return nil, nil
		}
		m.annotate(path, typeBigInt)
		return t.String(), nil
	case kvkey.Key:
		return flatten(t.Values(), path, m)
	case kvkey.Part:
		return flatten(kvkey.Key{t}.Values()[0], path, m)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			f, err := flatten(item, appendPath(path, strconv.Itoa(i)), m)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			f, err := flatten(item, appendPath(path, k), m)
			if err != nil {
				return nil, err
			}
			out[k] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T at %v", ErrUnsupportedType, v, path)
	}
}

func flattenFloat(f float64, path []string, m *meta) any {
	switch {
	case math.IsNaN(f):
		m.annotate(path, typeNumber)
		return "NaN"
	case math.IsInf(f, 1):
		m.annotate(path, typeNumber)
		return "Infinity"
	case math.IsInf(f, -1):
		m.annotate(path, typeNumber)
		return "-Infinity"
	}
	return f
}

func appendPath(path []string, seg string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

func (m *meta) annotate(path []string, typ string) {
	m.Values = append(m.Values, annotation{Path: append([]string{}, path...), Type: typ})
}

// Unmarshal decodes a body produced by Marshal.
func Unmarshal(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(env.JSON) == 0 {
		return nil, fmt.Errorf("%w: missing json member", ErrMalformed)
	}

	var root any
	if err := json.Unmarshal(env.JSON, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Meta == nil {
		return root, nil
	}

	for _, a := range env.Meta.Values {
		var err error
		root, err = restore(root, a.Path, a.Type)
		if err != nil {
			return nil, err
		}
	}
	return root, nil
}

// restore replaces the value at path with its typed form and returns the
// possibly replaced node.
func restore(node any, path []string, typ string) (any, error) {
	if len(path) == 0 {
		return revive(node, typ)
	}

	switch t := node.(type) {
	case []any:
		i, err := strconv.Atoi(path[0])
		if err != nil || i < 0 || i >= len(t) {
			return nil, fmt.Errorf("%w: bad index %q", ErrMalformed, path[0])
		}
		child, err := restore(t[i], path[1:], typ)
		if err != nil {
			return nil, err
		}
		t[i] = child
		return t, nil
	case map[string]any:
		item, ok := t[path[0]]
		if !ok {
			return nil, fmt.Errorf("%w: missing member %q", ErrMalformed, path[0])
		}
		child, err := restore(item, path[1:], typ)
		if err != nil {
			return nil, err
		}
		t[path[0]] = child
		return t, nil
	default:
		return nil, fmt.Errorf("%w: path %v crosses a scalar", ErrMalformed, path)
	}
}

func revive(node any, typ string) (any, error) {
	s, ok := node.(string)
	if !ok {
		return nil, fmt.Errorf("%w: annotated %s value is %T, not string", ErrMalformed, typ, node)
	}

	switch typ {
	case typeBytes:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: bytes: %v", ErrMalformed, err)
		}
		return b, nil
	case typeBigInt:
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%w: bigint %q", ErrMalformed, s)
		}
		return i, nil
	case typeNumber:
		switch s {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return nil, fmt.Errorf("%w: number %q", ErrMalformed, s)
	default:
		return nil, fmt.Errorf("%w: unknown annotation %q", ErrMalformed, typ)
	}
}
