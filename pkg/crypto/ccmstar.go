// CCM* implementation for IEEE 802.15.4 / ZigBee frame security.
// CCM* extends NIST 800-38C CCM with encryption-only operation (M = 0) and is
// defined in ZigBee Specification Annex A. ZigBee fixes:
//   - Key length: 128 bits (16 bytes)
//   - Nonce length: 13 bytes
//   - L = 2 (length field and block counter size)
//   - MIC length M in {0, 4, 8, 16}

package crypto

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

const (
	// NonceSize is the CCM* nonce size in bytes.
	NonceSize = 13

	// lenSize is L, the size of the length field and of the block counter.
	lenSize = 2

	// MaxPayloadSize is the largest plaintext the 16-bit length field of B0
	// can describe. It also bounds the block counter to 4096 blocks.
	MaxPayloadSize = 1<<(8*lenSize) - 1

	// MaxAADSize is the largest associated data that fits the 2-byte
	// length prefix used by CCM* (lengths from 0xFF00 on need a longer form).
	MaxAADSize = 0xFEFF
)

// Errors
var (
	ErrCCMInvalidMICSize   = errors.New("ccmstar: invalid MIC size, must be 0, 4, 8 or 16")
	ErrCCMInvalidNonceSize = errors.New("ccmstar: invalid nonce size, must be 13 bytes")
	ErrCCMPayloadTooLong   = errors.New("ccmstar: payload exceeds block counter range")
	ErrCCMAADTooLong       = errors.New("ccmstar: associated data too long")
	ErrCCMAuthFailed       = errors.New("ccmstar: message authentication failed")
)

// CCMStar is a CCM* transform bound to one block cipher and one MIC length.
// Only the forward direction of the block cipher is used.
type CCMStar struct {
	block  cipher.Block
	micLen int // M: 0, 4, 8 or 16
}

// NewCCMStar creates a CCM* transform over the given block cipher.
// micLen is the MIC length in bytes; 0 selects encryption without
// authentication.
func NewCCMStar(block cipher.Block, micLen int) (*CCMStar, error) {
	if !validMICLen(micLen) {
		return nil, ErrCCMInvalidMICSize
	}
	return &CCMStar{block: block, micLen: micLen}, nil
}

func validMICLen(m int) bool {
	switch m {
	case 0, 4, 8, 16:
		return true
	}
	return false
}

// MICSize returns the MIC length in bytes.
func (c *CCMStar) MICSize() int {
	return c.micLen
}

// checkLengths rejects inputs that would overflow the 16-bit length field,
// the block counter or the AAD length prefix. It runs before any block
// cipher call.
func (c *CCMStar) checkLengths(nonce []byte, aadLen, payloadLen int) error {
	if len(nonce) != NonceSize {
		return ErrCCMInvalidNonceSize
	}
	if payloadLen > MaxPayloadSize {
		return ErrCCMPayloadTooLong
	}
	if aadLen > MaxAADSize {
		return ErrCCMAADTooLong
	}
	return nil
}

// Seal encrypts plaintext and computes the MIC over aad and plaintext.
// Returns the ciphertext (same length as plaintext) and the encrypted MIC
// (MICSize bytes, empty when M = 0).
func (c *CCMStar) Seal(nonce, aad, plaintext []byte) (ciphertext, mic []byte, err error) {
	if err := c.checkLengths(nonce, len(aad), len(plaintext)); err != nil {
		return nil, nil, err
	}

	mic = make([]byte, c.micLen)
	if c.micLen > 0 {
		tag := c.computeTag(nonce, aad, plaintext)
		s0 := c.counterBlock(nonce, 0)
		for i := range mic {
			mic[i] = tag[i] ^ s0[i]
		}
	}

	ciphertext = make([]byte, len(plaintext))
	c.ctrXOR(nonce, ciphertext, plaintext)
	return ciphertext, mic, nil
}

// Open decrypts ciphertext and verifies mic over aad and the recovered
// plaintext. The MIC length must equal MICSize. On authentication failure no
// plaintext is returned.
func (c *CCMStar) Open(nonce, aad, ciphertext, mic []byte) ([]byte, error) {
	if len(mic) != c.micLen {
		return nil, ErrCCMInvalidMICSize
	}
	if err := c.checkLengths(nonce, len(aad), len(ciphertext)); err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	c.ctrXOR(nonce, plaintext, ciphertext)

	if c.micLen == 0 {
		return plaintext, nil
	}

	// Unmask the received MIC with S_0
	s0 := c.counterBlock(nonce, 0)
	received := make([]byte, c.micLen)
	for i := range received {
		received[i] = mic[i] ^ s0[i]
	}

	expected := c.computeTag(nonce, aad, plaintext)
	if subtle.ConstantTimeCompare(received, expected[:c.micLen]) != 1 {
		return nil, ErrCCMAuthFailed
	}
	return plaintext, nil
}

// computeTag runs CBC-MAC over B_0, the length-prefixed AAD and the
// plaintext, each zero-padded to a block boundary. CBC is emulated with
// single-block encryptions and a manual XOR.
func (c *CCMStar) computeTag(nonce, aad, plaintext []byte) [BlockSize]byte {
	// B_0: Flags || Nonce || l(m)
	// Flags = Reserved(1) || Adata(1) || M'(3) || L'(3)
	var b0 [BlockSize]byte
	flags := byte(0)
	if len(aad) > 0 {
		flags |= 1 << 6
	}
	flags |= byte((c.micLen-2)/2) << 3
	flags |= lenSize - 1
	b0[0] = flags
	copy(b0[1:1+NonceSize], nonce)
	binary.BigEndian.PutUint16(b0[1+NonceSize:], uint16(len(plaintext)))

	var mac [BlockSize]byte
	c.block.Encrypt(mac[:], b0[:])

	if len(aad) > 0 {
		// First AAD block carries the 2-byte length prefix
		var first [BlockSize]byte
		binary.BigEndian.PutUint16(first[0:2], uint16(len(aad)))
		n := copy(first[2:], aad)
		xorBlock(&mac, first[:])
		c.block.Encrypt(mac[:], mac[:])
		c.absorb(&mac, aad[n:])
	}

	c.absorb(&mac, plaintext)
	return mac
}

// absorb XORs data into the MAC state one zero-padded block at a time,
// encrypting after each block.
func (c *CCMStar) absorb(mac *[BlockSize]byte, data []byte) {
	for len(data) > 0 {
		n := BlockSize
		if n > len(data) {
			n = len(data)
		}
		xorBlock(mac, data[:n])
		c.block.Encrypt(mac[:], mac[:])
		data = data[n:]
	}
}

// counterBlock returns S_i = E(K, A_i) with A_i = Flags || Nonce || i.
// Flags for the counter blocks only carry L' = L - 1.
func (c *CCMStar) counterBlock(nonce []byte, i uint16) [BlockSize]byte {
	var a [BlockSize]byte
	a[0] = lenSize - 1
	copy(a[1:1+NonceSize], nonce)
	binary.BigEndian.PutUint16(a[1+NonceSize:], i)

	var s [BlockSize]byte
	c.block.Encrypt(s[:], a[:])
	return s
}

// ctrXOR encrypts or decrypts src into dst in counter mode starting at A_1.
// checkLengths has already bounded len(src) so the counter never wraps.
func (c *CCMStar) ctrXOR(nonce, dst, src []byte) {
	for i := 0; i < len(src); i += BlockSize {
		s := c.counterBlock(nonce, uint16(i/BlockSize+1))
		end := i + BlockSize
		if end > len(src) {
			end = len(src)
		}
		for j := i; j < end; j++ {
			dst[j] = src[j] ^ s[j-i]
		}
	}
}

// DecryptAndVerify is the single-call CCM* decryption used by frame
// processing. The MIC length is taken from len(mic).
//
// Parameters:
//   - key: 16-byte AES-128 key
//   - nonce: 13-byte CCM* nonce
//   - aad: associated data (authenticated, not encrypted)
//   - ciphertext: encrypted payload, possibly empty
//   - mic: encrypted MIC of 0, 4, 8 or 16 bytes
//
// Returns the plaintext, or ErrCCMAuthFailed if the MIC does not verify.
func DecryptAndVerify(key *[KeySize]byte, nonce, aad, ciphertext, mic []byte) ([]byte, error) {
	ccm, err := NewCCMStar(nil, len(mic))
	if err != nil {
		return nil, err
	}
	if err := ccm.checkLengths(nonce, len(aad), len(ciphertext)); err != nil {
		return nil, err
	}
	ccm.block = newBlock(key)
	return ccm.Open(nonce, aad, ciphertext, mic)
}

// EncryptAndTag is the sending-side counterpart of DecryptAndVerify.
// Returns the ciphertext and an encrypted MIC of micLen bytes.
func EncryptAndTag(key *[KeySize]byte, nonce, aad, plaintext []byte, micLen int) (ciphertext, mic []byte, err error) {
	ccm, err := NewCCMStar(nil, micLen)
	if err != nil {
		return nil, nil, err
	}
	if err := ccm.checkLengths(nonce, len(aad), len(plaintext)); err != nil {
		return nil, nil, err
	}
	ccm.block = newBlock(key)
	return ccm.Seal(nonce, aad, plaintext)
}
