package keyring

import (
	"github.com/backkem/zbsec/pkg/crypto"
)

// installCodeCRCSize is the size of the CRC-16 appended to an install code.
const installCodeCRCSize = 2

// KeyFromInstallCode derives the pre-configured link key for an install
// code. The code must include its trailing CRC-16/X-25 in little-endian
// order; the link key is the MMO hash over code and CRC.
func KeyFromInstallCode(code []byte) ([crypto.KeySize]byte, error) {
	switch len(code) - installCodeCRCSize {
	case 6, 8, 12, 16:
	default:
		return [crypto.KeySize]byte{}, ErrInvalidInstallCode
	}

	body := code[:len(code)-installCodeCRCSize]
	want := uint16(code[len(code)-2]) | uint16(code[len(code)-1])<<8
	if crc16X25(body) != want {
		return [crypto.KeySize]byte{}, ErrInstallCodeCRC
	}
	return crypto.MMOHash(code), nil
}

// ParseInstallCode parses hex install-code text (with CRC) and derives its
// link key.
func ParseInstallCode(text string) ([crypto.KeySize]byte, error) {
	code, err := parseHexBytes(text)
	if err != nil {
		return [crypto.KeySize]byte{}, err
	}
	return KeyFromInstallCode(code)
}

// crc16X25 computes CRC-16/X-25: reflected polynomial 0x1021, init and
// final XOR 0xFFFF.
func crc16X25(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return crc ^ 0xFFFF
}
