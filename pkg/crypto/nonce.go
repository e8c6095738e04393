package crypto

import "encoding/binary"

// BuildCCMStarNonce constructs the 13-byte CCM* nonce used by ZigBee NWK and
// APS security.
//
// Format: SourceAddress (8 bytes LE) || FrameCounter (4 bytes LE) || SecurityControl (1 byte)
//
// The control byte must already carry the security level that was used when
// the frame was secured; on the wire that subfield is usually zeroed.
func BuildCCMStarNonce(sourceAddress uint64, frameCounter uint32, securityControl byte) [NonceSize]byte {
	var nonce [NonceSize]byte

	// Bytes 0-7: extended source address (little-endian)
	binary.LittleEndian.PutUint64(nonce[0:8], sourceAddress)

	// Bytes 8-11: frame counter (little-endian)
	binary.LittleEndian.PutUint32(nonce[8:12], frameCounter)

	// Byte 12: security control
	nonce[12] = securityControl

	return nonce
}
