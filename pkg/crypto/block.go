// Package crypto provides the cryptographic primitives used by ZigBee and
// ZigBee Green Power frame security: AES-128 single-block encryption, the
// CCM* authenticated encryption mode, the Matyas-Meyer-Oseas hash and the
// keyed hash used for Key-Transport and Key-Load key derivation.
//
// Every construction here is built from forward block-cipher calls only.
// No AES decryption is ever needed.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

const (
	// KeySize is the AES-128 key size in bytes.
	KeySize = 16

	// BlockSize is the AES block size in bytes.
	BlockSize = aes.BlockSize
)

// EncryptBlock encrypts a single 16-byte block with AES-128 in ECB mode.
// This is the BlockCipher primitive that CCM* and the MMO hash are built on.
func EncryptBlock(key, block *[BlockSize]byte) [BlockSize]byte {
	var out [BlockSize]byte
	newBlock(key).Encrypt(out[:], block[:])
	return out
}

// newBlock returns an AES-128 cipher for a 16-byte key.
// aes.NewCipher only fails on bad key lengths, which the array type rules out.
func newBlock(key *[KeySize]byte) cipher.Block {
	b, err := aes.NewCipher(key[:])
	if err != nil {
		panic("crypto: aes key schedule failed: " + err.Error())
	}
	return b
}

// xorBlock XORs src into dst.
func xorBlock(dst *[BlockSize]byte, src []byte) {
	for i := 0; i < len(src) && i < BlockSize; i++ {
		dst[i] ^= src[i]
	}
}
