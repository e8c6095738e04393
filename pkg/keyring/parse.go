package keyring

import (
	"strings"

	"github.com/backkem/zbsec/pkg/crypto"
)

// ByteOrder selects how key text maps onto key bytes.
type ByteOrder uint8

const (
	// ByteOrderNormal keeps the bytes in the order they are written.
	ByteOrderNormal ByteOrder = iota

	// ByteOrderReverse reverses the bytes. Some tools print keys in
	// over-the-air (little-endian) order.
	ByteOrderReverse
)

// String returns the configuration name of the byte order.
func (o ByteOrder) String() string {
	if o == ByteOrderReverse {
		return "reverse"
	}
	return "normal"
}

// ParseByteOrder parses "normal" or "reverse"; empty selects normal.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return ByteOrderNormal, nil
	case "reverse", "reversed":
		return ByteOrderReverse, nil
	}
	return ByteOrderNormal, ErrInvalidKeyText
}

// ParseKey parses a human-entered 128-bit key.
//
// Accepted forms:
//   - 32 hex digits, optionally separated per byte by ':', '-' or spaces
//     ("00:11:22:...", "0011 2233 ...", "001122...")
//   - a double-quoted string of exactly 16 characters ("ZigBeeAlliance09")
//
// With ByteOrderReverse the resulting bytes are reversed. Any input that
// does not yield exactly 16 bytes returns ErrInvalidKeyText.
func ParseKey(text string, order ByteOrder) ([crypto.KeySize]byte, error) {
	var key [crypto.KeySize]byte

	raw, err := parseKeyBytes(strings.TrimSpace(text))
	if err != nil {
		return key, err
	}
	if len(raw) != crypto.KeySize {
		return key, ErrInvalidKeyText
	}

	copy(key[:], raw)
	if order == ByteOrderReverse {
		for i, j := 0, len(key)-1; i < j; i, j = i+1, j-1 {
			key[i], key[j] = key[j], key[i]
		}
	}
	return key, nil
}

func parseKeyBytes(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return []byte(s[1 : len(s)-1]), nil
	}
	return parseHexBytes(s)
}

// parseHexBytes reads hex pairs, allowing ':', '-' and whitespace between
// (but not inside) pairs.
func parseHexBytes(s string) ([]byte, error) {
	out := make([]byte, 0, crypto.KeySize)
	for i := 0; i < len(s); {
		switch s[i] {
		case ':', '-', ' ', '\t':
			i++
			continue
		}
		if i+1 >= len(s) {
			return nil, ErrInvalidKeyText
		}
		hi, ok1 := fromHex(s[i])
		lo, ok2 := fromHex(s[i+1])
		if !ok1 || !ok2 {
			return nil, ErrInvalidKeyText
		}
		out = append(out, hi<<4|lo)
		i += 2
	}
	return out, nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
