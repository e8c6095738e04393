// Package security models the ZigBee auxiliary security header: the
// security control field, the security level with its MIC length, the key
// identifier, and the frame counter / source / key sequence fields that
// feed the CCM* nonce.
//
// See ZigBee Specification Section 4.5.1 (Auxiliary Frame Header Format).
package security

// Level is the 3-bit security level subfield of the security control field.
// Each level fixes the MIC length and whether the payload is encrypted.
type Level uint8

const (
	// LevelNone applies no security.
	LevelNone Level = 0

	// LevelMIC32 authenticates with a 4-byte MIC.
	LevelMIC32 Level = 1

	// LevelMIC64 authenticates with an 8-byte MIC.
	LevelMIC64 Level = 2

	// LevelMIC128 authenticates with a 16-byte MIC.
	LevelMIC128 Level = 3

	// LevelENC encrypts without authentication.
	LevelENC Level = 4

	// LevelENCMIC32 encrypts and authenticates with a 4-byte MIC.
	// This is the level used by ZigBee PRO networks.
	LevelENCMIC32 Level = 5

	// LevelENCMIC64 encrypts and authenticates with an 8-byte MIC.
	LevelENCMIC64 Level = 6

	// LevelENCMIC128 encrypts and authenticates with a 16-byte MIC.
	LevelENCMIC128 Level = 7
)

// String returns a human-readable name for the security level.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "None"
	case LevelMIC32:
		return "MIC-32"
	case LevelMIC64:
		return "MIC-64"
	case LevelMIC128:
		return "MIC-128"
	case LevelENC:
		return "ENC"
	case LevelENCMIC32:
		return "ENC-MIC-32"
	case LevelENCMIC64:
		return "ENC-MIC-64"
	case LevelENCMIC128:
		return "ENC-MIC-128"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the level fits the 3-bit subfield.
func (l Level) IsValid() bool {
	return l <= LevelENCMIC128
}

// MICLength returns the MIC length in bytes: 0, 4, 8 or 16.
func (l Level) MICLength() int {
	switch l & controlLevelMask {
	case LevelMIC32, LevelENCMIC32:
		return 4
	case LevelMIC64, LevelENCMIC64:
		return 8
	case LevelMIC128, LevelENCMIC128:
		return 16
	default:
		return 0
	}
}

// Encrypted returns true if the payload is encrypted at this level.
func (l Level) Encrypted() bool {
	return l&levelEncryptBit != 0
}

// Secured returns true if the level provides encryption or authentication.
func (l Level) Secured() bool {
	return l&controlLevelMask != LevelNone
}

// ParseLevel parses a level name as printed by String, case-insensitively,
// or a single digit 0-7.
func ParseLevel(s string) (Level, error) {
	if len(s) == 1 && s[0] >= '0' && s[0] <= '7' {
		return Level(s[0] - '0'), nil
	}
	for l := LevelNone; l <= LevelENCMIC128; l++ {
		if equalFoldName(s, l.String()) {
			return l, nil
		}
	}
	return 0, ErrInvalidLevel
}

// equalFoldName compares level names ignoring case, '-' and '_'.
func equalFoldName(a, b string) bool {
	norm := func(s string) []byte {
		out := make([]byte, 0, len(s))
		for i := 0; i < len(s); i++ {
			c := s[i]
			if c == '-' || c == '_' {
				continue
			}
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			out = append(out, c)
		}
		return out
	}
	return string(norm(a)) == string(norm(b))
}

// KeyID is the 2-bit key identifier subfield of the security control field.
type KeyID uint8

const (
	// KeyIDLink selects a link (data) key shared by two devices.
	KeyIDLink KeyID = 0

	// KeyIDNetwork selects the network key. Frames secured with it carry a
	// key sequence number.
	KeyIDNetwork KeyID = 1

	// KeyIDKeyTransport selects the Key-Transport key derived from a link key.
	KeyIDKeyTransport KeyID = 2

	// KeyIDKeyLoad selects the Key-Load key derived from a link key.
	KeyIDKeyLoad KeyID = 3
)

// String returns a human-readable name for the key identifier.
func (k KeyID) String() string {
	switch k {
	case KeyIDLink:
		return "Link"
	case KeyIDNetwork:
		return "Network"
	case KeyIDKeyTransport:
		return "KeyTransport"
	case KeyIDKeyLoad:
		return "KeyLoad"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the key identifier fits the 2-bit subfield.
func (k KeyID) IsValid() bool {
	return k <= KeyIDKeyLoad
}

// Derived returns true if the effective key is derived from a link key
// with the keyed hash instead of being used as-is.
func (k KeyID) Derived() bool {
	return k == KeyIDKeyTransport || k == KeyIDKeyLoad
}

// ParseKeyID parses a key identifier name as printed by String,
// case-insensitively. "nwk", "tc-link", "transport" and "load" are accepted
// as aliases; empty selects KeyIDNetwork.
func ParseKeyID(s string) (KeyID, error) {
	switch {
	case s == "", equalFoldName(s, "nwk"):
		return KeyIDNetwork, nil
	case equalFoldName(s, "tc-link"):
		return KeyIDLink, nil
	case equalFoldName(s, "transport"):
		return KeyIDKeyTransport, nil
	case equalFoldName(s, "load"):
		return KeyIDKeyLoad, nil
	}
	for k := KeyIDLink; k <= KeyIDKeyLoad; k++ {
		if equalFoldName(s, k.String()) {
			return k, nil
		}
	}
	return 0, ErrInvalidKeyID
}

// BaseClass returns the class of stored key the effective key comes from:
// KeyIDNetwork for network keys, KeyIDLink for everything else.
func (k KeyID) BaseClass() KeyID {
	if k == KeyIDNetwork {
		return KeyIDNetwork
	}
	return KeyIDLink
}
