package kvkey

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"
)

func TestParseQuery_Empty(t *testing.T) {
	key := ParseQuery("")
	if key == nil || len(key) != 0 {
		t.Fatalf("expected empty key, got %#v", key)
	}
}

func TestParseQuery_UserAndNumber(t *testing.T) {
	key := ParseQuery("user,123")
	want := Key{String("user"), Number(123)}
	if !key.Equal(want) {
		t.Fatalf("expected %v, got %v", want, key)
	}
}

func TestParseQuery_Tokens(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Part
	}{
		{"integer", "42", Number(42)},
		{"fraction", "3.25", Number(3.25)},
		{"trailing dot", "7.", Number(7)},
		{"bigint", "5n", BigIntFromInt64(5)},
		{"bytes", "0xA1ff", Bytes{0xa1, 0xff}},
		{"odd hex is text", "0xabc", String("0xabc")},
		{"quoted", `"123"`, String("123")},
		{"quoted empty", `""`, String("")},
		{"true", "true", Bool(true)},
		{"false", "false", Bool(false)},
		{"negative is text", "-1", String("-1")},
		{"bare word", "users", String("users")},
		{"trimmed", "  spaced  ", String("spaced")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ParseQuery(tt.query)
			if len(key) != 1 {
				t.Fatalf("expected one part, got %d (%v)", len(key), key)
			}
			if !key.Equal(Key{tt.want}) {
				t.Fatalf("expected %#v, got %#v", tt.want, key[0])
			}
		})
	}
}

func TestParseQuery_BigIntBeyondInt64(t *testing.T) {
	key := ParseQuery("123456789012345678901234567890n")
	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	if len(key) != 1 || key[0].(BigInt).Int().Cmp(want) != 0 {
		t.Fatalf("unexpected key %v", key)
	}
}

func TestParseQuery_NumberBeyondFloat64(t *testing.T) {
	key := ParseQuery(`"user",` + strings.Repeat("9", 400))
	if len(key) != 2 {
		t.Fatalf("expected a two part key, got %v", key)
	}
	if n, ok := key[1].(Number); !ok || !math.IsInf(float64(n), 1) {
		t.Fatalf("expected +Inf, got %#v", key[1])
	}
}

func TestParseQuery_JSONArray(t *testing.T) {
	key := ParseQuery(`["a",1]`)
	want := Key{String("a"), Number(1)}
	if !key.Equal(want) {
		t.Fatalf("expected %v, got %v", want, key)
	}

	key = ParseQuery(`["a,b", true, 2.5]`)
	want = Key{String("a,b"), Bool(true), Number(2.5)}
	if !key.Equal(want) {
		t.Fatalf("expected %v, got %v", want, key)
	}
}

func TestParseQuery_MalformedJSONFallsBackToEmpty(t *testing.T) {
	key := ParseQuery(`["a",]`)
	if len(key) != 0 {
		t.Fatalf("expected empty key, got %v", key)
	}

	_, err := ParseQueryStrict(`["a",]`)
	if !errors.Is(err, ErrMalformedQuery) {
		t.Fatalf("expected ErrMalformedQuery, got %v", err)
	}

	_, err = ParseQueryStrict(`[null]`)
	if !errors.Is(err, ErrMalformedQuery) {
		t.Fatalf("expected ErrMalformedQuery for null element, got %v", err)
	}
}

func TestParseQuery_UnclosedBracketUsesCommaPath(t *testing.T) {
	key := ParseQuery("[invalid")
	want := Key{String("[invalid")}
	if !key.Equal(want) {
		t.Fatalf("expected %v, got %v", want, key)
	}

	key = ParseQuery("[a,b")
	want = Key{String("[a"), String("b")}
	if !key.Equal(want) {
		t.Fatalf("expected %v, got %v", want, key)
	}
}

func TestParseQuery_EmptyTokens(t *testing.T) {
	key := ParseQuery("a,,b")
	want := Key{String("a"), String(""), String("b")}
	if !key.Equal(want) {
		t.Fatalf("expected %v, got %v", want, key)
	}
}
