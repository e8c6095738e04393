// Package keyring holds the candidate keys tried when decrypting secured
// ZigBee and Green Power frames, and remembers per flow which key last
// worked so later frames of the same flow skip the trial loop.
package keyring

import (
	"fmt"

	"github.com/backkem/zbsec/pkg/crypto"
	"github.com/backkem/zbsec/pkg/security"
)

// Provenance records where a key came from.
type Provenance uint8

const (
	// Preconfigured keys are loaded from configuration at session start.
	Preconfigured Provenance = iota

	// Sniffed keys were learned from captured traffic, e.g. a transport-key
	// command decrypted earlier in the session.
	Sniffed
)

// String returns a human-readable name for the provenance.
func (p Provenance) String() string {
	switch p {
	case Preconfigured:
		return "pre-configured"
	case Sniffed:
		return "sniffed"
	default:
		return "unknown"
	}
}

// Key is a 128-bit key plus its role and provenance.
// Keys are immutable once added to a Ring.
type Key struct {
	// Bytes is the raw key in transmission byte order.
	Bytes [crypto.KeySize]byte

	// ID is the key class. Pre-configured keys are tried for every class.
	ID security.KeyID

	// Label is an optional human-readable name.
	Label string

	// Source is where the key came from.
	Source Provenance

	// Frame is the capture frame number a sniffed key was found in.
	Frame uint32
}

// String describes the key without revealing its bytes.
func (k *Key) String() string {
	switch {
	case k.Label != "" && k.Source == Sniffed:
		return fmt.Sprintf("%s (%s key from frame %d)", k.Label, k.ID, k.Frame)
	case k.Label != "":
		return k.Label
	case k.Source == Sniffed:
		return fmt.Sprintf("%s key from frame %d", k.ID, k.Frame)
	default:
		return fmt.Sprintf("%s %s key", k.Source, k.ID)
	}
}

// Flow identifies a security association for caching: the extended source
// address and the key identifier of the frame.
type Flow struct {
	Source uint64
	KeyID  security.KeyID
}

// String returns the flow as source/key-id.
func (f Flow) String() string {
	return fmt.Sprintf("%016x/%s", f.Source, f.KeyID)
}
