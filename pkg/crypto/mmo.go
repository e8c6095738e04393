// Matyas-Meyer-Oseas hash and keyed hash for ZigBee key derivation.
// This implements ZigBee Specification Annex B.6 (block-cipher based hash)
// and B.1.4 (keyed hash function for message authentication).

package crypto

import "encoding/binary"

// Key derivation selectors for DeriveKey (ZigBee Specification 4.5.3).
const (
	// KeyTransportSelector derives the Key-Transport key from a link key.
	KeyTransportSelector byte = 0x00

	// KeyLoadSelector derives the Key-Load key from a link key.
	KeyLoadSelector byte = 0x02
)

const (
	ipadByte = 0x36
	opadByte = 0x5c

	// shortLengthLimit is the first bit length that needs the 32-bit
	// length encoding.
	shortLengthLimit = 1 << 16
)

// MMOHash computes the AES-MMO hash of input.
//
// Hash_0 is all zeros and Hash_j = E(Hash_{j-1}, M_j) XOR M_j, i.e. the
// previous digest keys the cipher for the next block. The message is padded
// with 0x80, zeros up to 14 mod 16 bytes and the 16-bit big-endian bit
// length. Messages of 2^16 bits or more use 0x80, zeros up to 10 mod 16
// bytes, the 32-bit big-endian bit length and two zero bytes.
func MMOHash(input []byte) [BlockSize]byte {
	var h [BlockSize]byte
	padded := mmoPad(input)
	for i := 0; i < len(padded); i += BlockSize {
		var m [BlockSize]byte
		copy(m[:], padded[i:i+BlockSize])
		h = EncryptBlock(&h, &m)
		xorBlock(&h, m[:])
	}
	return h
}

// mmoPad returns input followed by the MMO padding.
func mmoPad(input []byte) []byte {
	bits := uint64(len(input)) * 8

	tail := 2 // length field bytes
	if bits >= shortLengthLimit {
		tail = 6 // 32-bit length plus 2 zero bytes
	}

	n := len(input) + 1
	for n%BlockSize != BlockSize-tail {
		n++
	}

	padded := make([]byte, n+tail)
	copy(padded, input)
	padded[len(input)] = 0x80
	if bits >= shortLengthLimit {
		binary.BigEndian.PutUint32(padded[n:], uint32(bits))
	} else {
		binary.BigEndian.PutUint16(padded[n:], uint16(bits))
	}
	return padded
}

// DeriveKey computes the keyed hash HMAC-MMO(baseKey, selector).
// This realizes the Key-Transport (selector 0x00) and Key-Load (selector 0x02)
// key derivations from a link key.
//
//	inner = MMO((baseKey XOR ipad) || selector)
//	key   = MMO((baseKey XOR opad) || inner)
func DeriveKey(baseKey *[KeySize]byte, selector byte) [KeySize]byte {
	var buf [KeySize + BlockSize]byte

	for i := 0; i < KeySize; i++ {
		buf[i] = baseKey[i] ^ ipadByte
	}
	buf[KeySize] = selector
	inner := MMOHash(buf[:KeySize+1])

	for i := 0; i < KeySize; i++ {
		buf[i] = baseKey[i] ^ opadByte
	}
	copy(buf[KeySize:], inner[:])
	return MMOHash(buf[:])
}
