package decrypt

import (
	"github.com/pion/logging"

	"github.com/backkem/zbsec/pkg/crypto"
	"github.com/backkem/zbsec/pkg/keyring"
	"github.com/backkem/zbsec/pkg/security"
)

// DefaultDecodeLevel is the level ZigBee PRO networks secure every frame
// with. Senders zero the level bits on the wire, so receivers assume it.
const DefaultDecodeLevel = security.LevelENCMIC32

// Frame is a secured NWK or APS frame as handed over by the protocol parser.
type Frame struct {
	// Header is the parsed auxiliary security header.
	Header *security.Header

	// AssociatedData is every byte from the start of the secured layer
	// header up to the ciphertext, auxiliary header included.
	AssociatedData []byte

	// Payload is the secured payload followed by the MIC.
	Payload []byte

	// ControlOffset is the index of the security control byte within
	// AssociatedData.
	ControlOffset int

	// ShortSource is the 16-bit network source address, if known. Used to
	// resolve the extended source of frames without the extended nonce
	// flag, and to learn the mapping from frames with it.
	ShortSource *uint16

	// PANID scopes ShortSource.
	PANID uint16
}

// Config configures a Decryptor.
type Config struct {
	// KeyRing supplies the candidate keys and the per-flow cache.
	// Nil means no keys: every secured frame is exhausted.
	KeyRing *keyring.Ring

	// Addresses resolves short source addresses.
	// Optional - if nil, frames without an extended source cannot be decrypted.
	Addresses *AddressMap

	// DecodeLevel is the security level patched into the control byte before
	// the nonce and associated data are built.
	// Default: DefaultDecodeLevel (used when LevelNone)
	DecodeLevel security.Level

	// TrustWireLevel uses the level bits as received instead of DecodeLevel.
	TrustWireLevel bool

	// Replay flags authenticated frames whose counter was already seen.
	// Optional - if nil, replays are not detected.
	Replay *ReplayTable

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Decryptor authenticates and decrypts secured ZigBee NWK and APS frames.
// Safe for concurrent use when the key ring and address map are.
type Decryptor struct {
	trial

	addresses      *AddressMap
	decodeLevel    security.Level
	trustWireLevel bool
}

// NewDecryptor creates a new frame decryptor.
func NewDecryptor(config Config) *Decryptor {
	level := config.DecodeLevel
	if level == security.LevelNone || !level.IsValid() {
		level = DefaultDecodeLevel
	}

	d := &Decryptor{
		trial:          trial{ring: config.KeyRing, replay: config.Replay},
		addresses:      config.Addresses,
		decodeLevel:    level,
		trustWireLevel: config.TrustWireLevel,
	}

	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("zbsec-decrypt")
	}

	return d
}

// DecodeLevel returns the level patched into received control bytes.
func (d *Decryptor) DecodeLevel() security.Level {
	return d.decodeLevel
}

// EffectiveControl returns the control byte the nonce and associated data
// are built with for a frame received with wire.
func (d *Decryptor) EffectiveControl(wire security.Control) security.Control {
	if d.trustWireLevel {
		return wire
	}
	return wire.WithLevel(d.decodeLevel)
}

// Decrypt authenticates the frame and recovers its payload.
//
// Returns a Result in StateDecrypted on success. A frame no candidate
// authenticates yields StateExhausted and ErrNoKeyMatched (or
// ErrSourceUnresolved); the caller shows the payload as still encrypted.
// A malformed frame yields StateAwaitingHeader and an ErrStructural.
func (d *Decryptor) Decrypt(frame *Frame) (*Result, error) {
	result := &Result{State: StateAwaitingHeader}

	h := frame.Header
	if h == nil {
		return result, structural(ErrNoHeader)
	}
	if err := h.Validate(); err != nil {
		return result, structural(err)
	}

	control := d.EffectiveControl(h.Control)
	level := control.Level()
	keyID := h.Control.KeyID()
	result.Flow.KeyID = keyID
	if h.Source != nil {
		result.Flow.Source = *h.Source
	}

	if level == security.LevelNone {
		result.State = StateDecrypted
		result.Plaintext = append([]byte(nil), frame.Payload...)
		return result, nil
	}

	body, mic, err := splitMIC(frame.Payload, level.MICLength())
	if err != nil {
		return result, structural(err)
	}

	if frame.ControlOffset < 0 || frame.ControlOffset >= len(frame.AssociatedData) {
		return result, structural(ErrControlOffset)
	}
	if err := checkBudget(level.Encrypted(), len(frame.AssociatedData), len(body)); err != nil {
		return result, structural(err)
	}

	source, ok := d.resolveSource(frame)
	if !ok {
		result.State = StateExhausted
		if d.log != nil {
			d.log.Debugf("no extended source for short address %#04x on PAN %#04x", derefShort(frame.ShortSource), frame.PANID)
		}
		return result, ErrSourceUnresolved
	}
	result.Flow.Source = source

	aad := make([]byte, len(frame.AssociatedData))
	copy(aad, frame.AssociatedData)
	aad[frame.ControlOffset] = byte(control)

	nonce := h.NonceFor(source, control)

	if d.log != nil {
		d.log.Tracef("flow %s: level %s, counter %d, nonce %x", result.Flow, level, h.FrameCounter, nonce)
	}

	var open opener
	if level.Encrypted() {
		open = decryptVerify(nonce[:], aad, body, mic)
	} else {
		open = authOnly(nonce[:], aad, body, mic)
	}

	return d.tryKeys(result, h.FrameCounter, keyDeriver(keyID), open)
}

// resolveSource returns the extended source for the nonce. A header source
// is learned for the frame's short address.
func (d *Decryptor) resolveSource(frame *Frame) (uint64, bool) {
	if src := frame.Header.Source; src != nil {
		if d.addresses != nil && frame.ShortSource != nil {
			d.addresses.Learn(frame.PANID, *frame.ShortSource, *src)
		}
		return *src, true
	}
	if d.addresses == nil || frame.ShortSource == nil {
		return 0, false
	}
	return d.addresses.Resolve(frame.PANID, *frame.ShortSource)
}

// keyDeriver returns how candidates are turned into CCM* keys for keyID.
// Key-Transport and Key-Load frames are secured with a key hashed from the
// link key; network and link keys are used directly.
func keyDeriver(keyID security.KeyID) deriver {
	var selector byte
	switch keyID {
	case security.KeyIDKeyTransport:
		selector = crypto.KeyTransportSelector
	case security.KeyIDKeyLoad:
		selector = crypto.KeyLoadSelector
	default:
		return rawKey
	}
	return func(key *keyring.Key) [crypto.KeySize]byte {
		return crypto.DeriveKey(&key.Bytes, selector)
	}
}

func derefShort(p *uint16) uint16 {
	if p == nil {
		return 0xFFFF
	}
	return *p
}
