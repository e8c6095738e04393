// Package greenpower models the security fields of ZigBee Green Power
// (GPDF) frames and builds the CCM* nonce variant Green Power uses.
//
// See ZigBee Green Power Specification Section A.1.5.
package greenpower

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/backkem/zbsec/pkg/crypto"
	"github.com/backkem/zbsec/pkg/keyring"
	"github.com/backkem/zbsec/pkg/security"
)

// Errors
var (
	ErrUnsupportedLevel = errors.New("greenpower: unsupported security level")
	ErrUnknownAppID     = errors.New("greenpower: unknown application ID")
)

// ApplicationID selects how the GPD is addressed (Extended NWK Frame Control bits 0-2).
type ApplicationID uint8

const (
	// AppIDSourceID addresses the GPD by a 32-bit SrcID.
	AppIDSourceID ApplicationID = 0

	// AppIDIEEE addresses the GPD by its 64-bit IEEE address.
	AppIDIEEE ApplicationID = 2
)

// String returns a human-readable name for the application ID.
func (a ApplicationID) String() string {
	switch a {
	case AppIDSourceID:
		return "SrcID"
	case AppIDIEEE:
		return "IEEE"
	default:
		return fmt.Sprintf("AppID(%d)", uint8(a))
	}
}

// Direction is the frame direction bit of the Extended NWK Frame Control.
type Direction uint8

const (
	// FromGPD marks frames sent by the Green Power device.
	FromGPD Direction = 0

	// ToGPD marks frames sent to the Green Power device.
	ToGPD Direction = 1
)

// Level is the 2-bit Green Power security level.
type Level uint8

const (
	// LevelNone applies no security.
	LevelNone Level = 0

	// LevelShortMIC is the deprecated 1-byte counter / 2-byte MIC level.
	LevelShortMIC Level = 1

	// LevelMIC32 authenticates with a full frame counter and a 4-byte MIC.
	LevelMIC32 Level = 2

	// LevelENCMIC32 additionally encrypts the payload.
	LevelENCMIC32 Level = 3
)

// String returns a human-readable name for the security level.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "None"
	case LevelShortMIC:
		return "1LSB-FC-16bit-MIC"
	case LevelMIC32:
		return "FC-MIC-32"
	case LevelENCMIC32:
		return "ENC-FC-MIC-32"
	default:
		return "Unknown"
	}
}

// MICLength returns the MIC length in bytes.
func (l Level) MICLength() int {
	switch l {
	case LevelShortMIC:
		return 2
	case LevelMIC32, LevelENCMIC32:
		return 4
	default:
		return 0
	}
}

// Encrypted returns true if the payload is encrypted.
func (l Level) Encrypted() bool {
	return l == LevelENCMIC32
}

// KeyType is the security key bit of the Extended NWK Frame Control.
type KeyType uint8

const (
	// KeyShared selects a key shared by a group of GPDs.
	KeyShared KeyType = 0

	// KeyIndividual selects a key unique to one GPD.
	KeyIndividual KeyType = 1
)

// Nonce security control bytes (Section A.1.5.4.2).
const (
	nonceControl      = 0x05
	nonceControlToGPD = 0xC5
)

// Header holds the security-relevant fields of a Green Power frame.
type Header struct {
	ApplicationID ApplicationID
	Direction     Direction
	Level         Level
	KeyType       KeyType

	// SourceID is the GPD SrcID (AppIDSourceID).
	SourceID uint32

	// IEEE is the GPD IEEE address (AppIDIEEE).
	IEEE uint64

	// FrameCounter is the security frame counter.
	FrameCounter uint32
}

// Validate checks that the header can be processed with CCM*.
func (h *Header) Validate() error {
	if h.ApplicationID != AppIDSourceID && h.ApplicationID != AppIDIEEE {
		return ErrUnknownAppID
	}
	if h.Level > LevelENCMIC32 || h.Level == LevelShortMIC {
		return ErrUnsupportedLevel
	}
	return nil
}

// Nonce builds the 13-byte Green Power CCM* nonce.
//
// SrcID addressing: SrcID (4 LE, zero for frames to the GPD) || SrcID (4 LE) || FrameCounter (4 LE) || 0x05
// IEEE addressing:  IEEE (8 LE) || FrameCounter (4 LE) || 0x05, or 0xC5 for frames to the GPD
func (h *Header) Nonce() [crypto.NonceSize]byte {
	var nonce [crypto.NonceSize]byte

	switch h.ApplicationID {
	case AppIDIEEE:
		binary.LittleEndian.PutUint64(nonce[0:8], h.IEEE)
	default:
		if h.Direction == FromGPD {
			binary.LittleEndian.PutUint32(nonce[0:4], h.SourceID)
		}
		binary.LittleEndian.PutUint32(nonce[4:8], h.SourceID)
	}

	binary.LittleEndian.PutUint32(nonce[8:12], h.FrameCounter)

	nonce[12] = nonceControl
	if h.ApplicationID == AppIDIEEE && h.Direction == ToGPD {
		nonce[12] = nonceControlToGPD
	}
	return nonce
}

// Source returns the GPD address as a 64-bit value.
func (h *Header) Source() uint64 {
	if h.ApplicationID == AppIDIEEE {
		return h.IEEE
	}
	return uint64(h.SourceID)
}

// Flow returns the cache key for this GPD. Shared keys map to the network
// key class and individual keys to the link key class.
func (h *Header) Flow() keyring.Flow {
	id := security.KeyIDNetwork
	if h.KeyType == KeyIndividual {
		id = security.KeyIDLink
	}
	return keyring.Flow{Source: h.Source(), KeyID: id}
}
