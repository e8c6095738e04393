package security

import (
	"encoding/binary"

	"github.com/backkem/zbsec/pkg/crypto"
)

// Control is the security control byte of the auxiliary header.
type Control uint8

// NewControl builds a control byte from its subfields.
func NewControl(level Level, keyID KeyID, extendedNonce bool) Control {
	c := Control(level&controlLevelMask) | Control(keyID&controlKeyIDMask)<<controlKeyIDShift
	if extendedNonce {
		c |= controlExtendedNonce
	}
	return c
}

// Level returns the security level subfield.
func (c Control) Level() Level {
	return Level(c & controlLevelMask)
}

// KeyID returns the key identifier subfield.
func (c Control) KeyID() KeyID {
	return KeyID(c>>controlKeyIDShift) & controlKeyIDMask
}

// ExtendedNonce returns true if the header carries the extended source address.
func (c Control) ExtendedNonce() bool {
	return c&controlExtendedNonce != 0
}

// WithLevel returns the control byte with its level subfield replaced.
// ZigBee senders zero the level on the wire after securing a frame, so
// receivers patch in the level the frame was actually secured with before
// building the nonce and the associated data.
func (c Control) WithLevel(level Level) Control {
	return c&^controlLevelMask | Control(level&controlLevelMask)
}

// Header is a parsed auxiliary security header.
// Created once per secured frame; read-only afterwards.
type Header struct {
	// Control is the security control byte as received.
	Control Control

	// FrameCounter is the outgoing frame counter of the sender.
	FrameCounter uint32

	// Source is the extended (64-bit) source address.
	// Non-nil iff Control.ExtendedNonce() is set.
	Source *uint64

	// KeySeqNo is the active network key sequence number.
	// Non-nil iff Control.KeyID() is KeyIDNetwork.
	KeySeqNo *uint8
}

// Size returns the encoded size of the auxiliary header in bytes.
func (h *Header) Size() int {
	size := MinHeaderSize
	if h.Control.ExtendedNonce() {
		size += SourceAddressSize
	}
	if h.Control.KeyID() == KeyIDNetwork {
		size += KeySeqNoSize
	}
	return size
}

// Validate checks that the optional fields match the control byte.
func (h *Header) Validate() error {
	if h.Source != nil && !h.Control.ExtendedNonce() {
		return ErrUnexpectedSource
	}
	if h.Source == nil && h.Control.ExtendedNonce() {
		return ErrSourceUnknown
	}
	if h.Control.KeyID() == KeyIDNetwork && h.KeySeqNo == nil {
		return ErrMissingKeySeqNo
	}
	return nil
}

// ParseHeader decodes an auxiliary security header from data.
// Returns the header and the number of bytes consumed.
func ParseHeader(data []byte) (*Header, int, error) {
	if len(data) < MinHeaderSize {
		return nil, 0, ErrHeaderTooShort
	}

	h := &Header{Control: Control(data[0])}
	if h.Size() > len(data) {
		return nil, 0, ErrHeaderTooShort
	}

	offset := ControlSize
	h.FrameCounter = binary.LittleEndian.Uint32(data[offset:])
	offset += FrameCounterSize

	if h.Control.ExtendedNonce() {
		src := binary.LittleEndian.Uint64(data[offset:])
		h.Source = &src
		offset += SourceAddressSize
	}

	if h.Control.KeyID() == KeyIDNetwork {
		seq := data[offset]
		h.KeySeqNo = &seq
		offset += KeySeqNoSize
	}

	return h, offset, nil
}

// Encode serializes the header as it appears on the wire.
func (h *Header) Encode() []byte {
	buf := make([]byte, h.Size())
	buf[0] = byte(h.Control)
	offset := ControlSize
	binary.LittleEndian.PutUint32(buf[offset:], h.FrameCounter)
	offset += FrameCounterSize
	if h.Control.ExtendedNonce() {
		var src uint64
		if h.Source != nil {
			src = *h.Source
		}
		binary.LittleEndian.PutUint64(buf[offset:], src)
		offset += SourceAddressSize
	}
	if h.Control.KeyID() == KeyIDNetwork && h.KeySeqNo != nil {
		buf[offset] = *h.KeySeqNo
	}
	return buf
}

// Nonce builds the CCM* nonce for this header with the given effective
// control byte. Returns ErrSourceUnknown if the header carries no source
// address; use NonceFor with a resolved address in that case.
func (h *Header) Nonce(effective Control) ([crypto.NonceSize]byte, error) {
	if h.Source == nil {
		return [crypto.NonceSize]byte{}, ErrSourceUnknown
	}
	return h.NonceFor(*h.Source, effective), nil
}

// NonceFor builds the CCM* nonce using an externally resolved source address.
func (h *Header) NonceFor(source uint64, effective Control) [crypto.NonceSize]byte {
	return crypto.BuildCCMStarNonce(source, h.FrameCounter, byte(effective))
}
