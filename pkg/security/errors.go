package security

import "errors"

// Security header errors.
var (
	ErrHeaderTooShort   = errors.New("security: auxiliary header too short")
	ErrInvalidLevel     = errors.New("security: invalid security level")
	ErrInvalidKeyID     = errors.New("security: invalid key identifier")
	ErrSourceUnknown    = errors.New("security: extended source address not present")
	ErrMissingKeySeqNo  = errors.New("security: network key frame without key sequence number")
	ErrUnexpectedSource = errors.New("security: source address present without extended nonce flag")
)

// Auxiliary header field sizes (Section 4.5.1).
const (
	// ControlSize is the size of the security control field.
	ControlSize = 1

	// FrameCounterSize is the size of the frame counter field.
	FrameCounterSize = 4

	// SourceAddressSize is the size of the extended source address field.
	SourceAddressSize = 8

	// KeySeqNoSize is the size of the key sequence number field.
	KeySeqNoSize = 1

	// MinHeaderSize is the smallest auxiliary header: control + frame counter.
	MinHeaderSize = ControlSize + FrameCounterSize
)

// Security control bit positions (Section 4.5.1.1).
const (
	// controlLevelMask is the mask for the security level (bits 0-2).
	controlLevelMask = 0x07

	// controlKeyIDShift is the bit shift for the key identifier (bits 3-4).
	controlKeyIDShift = 3

	// controlKeyIDMask is the mask for the key identifier after shifting.
	controlKeyIDMask = 0x03

	// controlExtendedNonce is the extended nonce flag (bit 5).
	controlExtendedNonce = 0x20

	// levelEncryptBit marks the encrypting levels.
	levelEncryptBit = 0x04
)
