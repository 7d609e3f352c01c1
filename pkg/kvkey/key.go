// Package kvkey models multi-part store keys: parsing them from typed-in
// queries, rendering them back for display and encoding them into ordered
// bytes for the store.
package kvkey

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
)

// Kind identifies the type of a single key part.
type Kind uint8

const (
	KindBytes Kind = iota + 1
	KindString
	KindBigInt
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindBigInt:
		return "bigint"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Part is one typed element of a Key. The set of implementations is closed:
// String, Number, BigInt, Bytes and Bool.
type Part interface {
	Kind() Kind
	isPart()
}

type String string

type Number float64

type Bytes []byte

type Bool bool

// BigInt is an arbitrary precision integer part. The zero value is 0.
type BigInt struct {
	v *big.Int
}

func NewBigInt(v *big.Int) BigInt {
	return BigInt{v: new(big.Int).Set(v)}
}

func BigIntFromInt64(v int64) BigInt {
	return BigInt{v: big.NewInt(v)}
}

// Int returns a copy of the underlying integer.
func (b BigInt) Int() *big.Int {
	if b.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.v)
}

func (String) Kind() Kind { return KindString }
func (Number) Kind() Kind { return KindNumber }
func (Bytes) Kind() Kind  { return KindBytes }
func (Bool) Kind() Kind   { return KindBool }
func (BigInt) Kind() Kind { return KindBigInt }

func (String) isPart() {}
func (Number) isPart() {}
func (Bytes) isPart()  {}
func (Bool) isPart()   {}
func (BigInt) isPart() {}

// Key is an ordered sequence of parts. A nil or empty Key is the empty prefix.
type Key []Part

// Equal reports structural equality.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if !partEqual(k[i], other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a leading subsequence of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return k[:len(prefix)].Equal(prefix)
}

func partEqual(a, b Part) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case String:
		return av == b.(String)
	case Number:
		bv := b.(Number)
		if math.IsNaN(float64(av)) {
			return math.IsNaN(float64(bv))
		}
		return av == bv
	case Bool:
		return av == b.(Bool)
	case Bytes:
		return bytes.Equal(av, b.(Bytes))
	case BigInt:
		return av.Int().Cmp(b.(BigInt).Int()) == 0
	}
	return false
}

// Values converts the key into plain Go values: string, float64, *big.Int,
// []byte and bool.
func (k Key) Values() []any {
	out := make([]any, len(k))
	for i, p := range k {
		switch v := p.(type) {
		case String:
			out[i] = string(v)
		case Number:
			out[i] = float64(v)
		case BigInt:
			out[i] = v.Int()
		case Bytes:
			out[i] = []byte(v)
		case Bool:
			out[i] = bool(v)
		}
	}
	return out
}

// FromValues is the inverse of Key.Values. Integer Go types are accepted as
// numbers.
func FromValues(values []any) (Key, error) {
	key := make(Key, 0, len(values))
	for i, v := range values {
		p, err := PartOf(v)
		if err != nil {
			return nil, fmt.Errorf("key part %d: %w", i, err)
		}
		key = append(key, p)
	}
	return key, nil
}

// PartOf wraps a plain Go value as a key part.
func PartOf(v any) (Part, error) {
	switch t := v.(type) {
	case Part:
		return t, nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(t), nil
	case int:
		return Number(t), nil
	case int64:
		return Number(t), nil
	case uint64:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case []byte:
		return Bytes(append([]byte(nil), t...)), nil
	case *big.Int:
		if t == nil {
			return nil, fmt.Errorf("%w: nil big integer", ErrInvalidPart)
		}
		return NewBigInt(t), nil
	case big.Int:
		return NewBigInt(&t), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidPart, v)
	}
}
