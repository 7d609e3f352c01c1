package kvkey

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
)

// Type tags of the binary key encoding. Their numeric order defines the
// cross-type order of keys: bytes < string < bigint < number < bool.
const (
	tagBytes     byte = 0x01
	tagString    byte = 0x02
	tagBigIntNeg byte = 0x13
	tagBigIntPos byte = 0x15
	tagNumber    byte = 0x21
	tagFalse     byte = 0x26
	tagTrue      byte = 0x27
)

// Encode produces an order-preserving byte form of the key. Parts are
// self-delimiting, so the encoding of a prefix is a byte prefix of the
// encoding of every key that starts with it.
func Encode(key Key) ([]byte, error) {
	var buf bytes.Buffer
	for i, p := range key {
		if err := encodePart(&buf, p); err != nil {
			return nil, fmt.Errorf("key part %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func encodePart(buf *bytes.Buffer, p Part) error {
	switch v := p.(type) {
	case Bytes:
		buf.WriteByte(tagBytes)
		writeEscaped(buf, v)
	case String:
		buf.WriteByte(tagString)
		writeEscaped(buf, []byte(v))
	case BigInt:
		i := v.Int()
		mag := new(big.Int).Abs(i).Bytes()
		if len(mag) > math.MaxUint8 {
			return ErrBigIntTooLarge
		}
		if i.Sign() < 0 {
			buf.WriteByte(tagBigIntNeg)
			buf.WriteByte(^byte(len(mag)))
			for _, b := range mag {
				buf.WriteByte(^b)
			}
			return nil
		}
		buf.WriteByte(tagBigIntPos)
		buf.WriteByte(byte(len(mag)))
		buf.Write(mag)
	case Number:
		f := float64(v)
		if math.IsNaN(f) {
			f = math.NaN()
		}
		bits := math.Float64bits(f)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		buf.WriteByte(tagNumber)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], bits)
		buf.Write(b[:])
	case Bool:
		if v {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	default:
		return fmt.Errorf("%w: %T", ErrInvalidPart, p)
	}
	return nil
}

// writeEscaped writes b terminated by 0x00, with every 0x00 inside b written
// as 0x00 0xFF.
func writeEscaped(buf *bytes.Buffer, b []byte) {
	for _, c := range b {
		buf.WriteByte(c)
		if c == 0x00 {
			buf.WriteByte(0xFF)
		}
	}
	buf.WriteByte(0x00)
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Key, error) {
	key := Key{}
	for len(b) > 0 {
		tag := b[0]
		b = b[1:]
		switch tag {
		case tagBytes, tagString:
			raw, rest, err := readEscaped(b)
			if err != nil {
				return nil, err
			}
			b = rest
			if tag == tagBytes {
				key = append(key, Bytes(raw))
			} else {
				key = append(key, String(raw))
			}
		case tagBigIntPos, tagBigIntNeg:
			if len(b) < 1 {
				return nil, fmt.Errorf("%w: truncated big integer", ErrMalformedKey)
			}
			n := int(b[0])
			if tag == tagBigIntNeg {
				n = int(^b[0])
			}
			if len(b) < 1+n {
				return nil, fmt.Errorf("%w: truncated big integer", ErrMalformedKey)
			}
			mag := append([]byte(nil), b[1:1+n]...)
			b = b[1+n:]
			if tag == tagBigIntNeg {
				for i := range mag {
					mag[i] = ^mag[i]
				}
			}
			i := new(big.Int).SetBytes(mag)
			if tag == tagBigIntNeg {
				i.Neg(i)
			}
			key = append(key, BigInt{v: i})
		case tagNumber:
			if len(b) < 8 {
				return nil, fmt.Errorf("%w: truncated number", ErrMalformedKey)
			}
			bits := binary.BigEndian.Uint64(b[:8])
			b = b[8:]
			if bits&(1<<63) != 0 {
				bits &^= 1 << 63
			} else {
				bits = ^bits
			}
			key = append(key, Number(math.Float64frombits(bits)))
		case tagFalse:
			key = append(key, Bool(false))
		case tagTrue:
			key = append(key, Bool(true))
		default:
			return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformedKey, tag)
		}
	}
	return key, nil
}

func readEscaped(b []byte) ([]byte, []byte, error) {
	var out []byte
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			out = append(out, b[i])
			continue
		}
		if i+1 < len(b) && b[i+1] == 0xFF {
			out = append(out, 0x00)
			i++
			continue
		}
		if out == nil {
			out = []byte{}
		}
		return out, b[i+1:], nil
	}
	return nil, nil, fmt.Errorf("%w: unterminated string or bytes", ErrMalformedKey)
}

// HasEncodedPrefix reports whether the encoded key k starts with the encoded
// key prefix on a part boundary. A plain byte prefix test is not enough: the
// text "a\x00" encodes with the encoding of "a" as its byte prefix, followed
// by the 0xFF escape byte, which never starts a part.
func HasEncodedPrefix(k, prefix []byte) bool {
	if !bytes.HasPrefix(k, prefix) {
		return false
	}
	return len(k) == len(prefix) || k[len(prefix)] != 0xFF
}
