package kvkey

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

var (
	reNumber = regexp.MustCompile(`^[0-9][0-9]*(\.[0-9]*)?$`)
	reBigInt = regexp.MustCompile(`^[0-9]+n$`)
	reBytes  = regexp.MustCompile(`^0x([a-fA-F0-9][a-fA-F0-9])+$`)
)

// ParseQuery turns a typed-in search string into a key. Malformed input is
// logged and yields the empty key, which matches every entry.
func ParseQuery(text string) Key {
	key, err := ParseQueryStrict(text)
	if err != nil {
		slog.Warn("failed to decode key query, using empty key", "query", text, "error", err)
		return Key{}
	}
	return key
}

// ParseQueryStrict is ParseQuery with the decode error returned instead of
// logged.
func ParseQueryStrict(text string) (Key, error) {
	if text == "" {
		return Key{}, nil
	}

	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return parseArray(text)
	}

	tokens := strings.Split(text, ",")
	key := make(Key, 0, len(tokens))
	for _, tok := range tokens {
		p, err := parseToken(strings.TrimSpace(tok))
		if err != nil {
			return nil, err
		}
		key = append(key, p)
	}
	return key, nil
}

func parseArray(text string) (Key, error) {
	var raw []any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedQuery, err)
	}

	key := make(Key, 0, len(raw))
	for i, v := range raw {
		switch t := v.(type) {
		case string:
			key = append(key, String(t))
		case float64:
			key = append(key, Number(t))
		case bool:
			key = append(key, Bool(t))
		default:
			return nil, fmt.Errorf("%w: element %d has unsupported type %T", ErrMalformedQuery, i, v)
		}
	}
	return key, nil
}

// parseToken classifies one trimmed comma-separated token. The order of the
// checks matters: a bare word that looks like a number or boolean is taken as
// one; quote it to force text.
func parseToken(tok string) (Part, error) {
	switch {
	case reNumber.MatchString(tok):
		f, err := strconv.ParseFloat(tok, 64)
		// out of range digits still give ±Inf, as a JavaScript Number would
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("%w: number %q: %v", ErrMalformedQuery, tok, err)
		}
		return Number(f), nil
	case reBigInt.MatchString(tok):
		v, ok := new(big.Int).SetString(tok[:len(tok)-1], 10)
		if !ok {
			return nil, fmt.Errorf("%w: big integer %q", ErrMalformedQuery, tok)
		}
		return BigInt{v: v}, nil
	case reBytes.MatchString(tok):
		b, err := hex.DecodeString(tok[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: bytes %q: %v", ErrMalformedQuery, tok, err)
		}
		return Bytes(b), nil
	case len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"':
		return String(tok[1 : len(tok)-1]), nil
	case tok == "true":
		return Bool(true), nil
	case tok == "false":
		return Bool(false), nil
	default:
		return String(tok), nil
	}
}
