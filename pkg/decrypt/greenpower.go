package decrypt

import (
	"github.com/pion/logging"

	"github.com/backkem/zbsec/pkg/greenpower"
	"github.com/backkem/zbsec/pkg/keyring"
)

// GPFrame is a secured Green Power data frame.
type GPFrame struct {
	// Header holds the parsed GPDF security fields.
	Header *greenpower.Header

	// AssociatedData is the frame header from the NWK frame control up to
	// the payload, security frame counter included.
	AssociatedData []byte

	// Payload is the GPD command (encrypted or not) followed by the MIC.
	Payload []byte
}

// GPConfig configures a GPDecryptor.
type GPConfig struct {
	// KeyRing supplies the Green Power shared and individual keys.
	KeyRing *keyring.Ring

	// Replay flags authenticated frames whose counter was already seen.
	// Optional - if nil, replays are not detected.
	Replay *ReplayTable

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// GPDecryptor authenticates and decrypts Green Power frames.
// GP keys are used as configured; there is no level override and no key
// derivation.
type GPDecryptor struct {
	trial
}

// NewGPDecryptor creates a new Green Power frame decryptor.
func NewGPDecryptor(config GPConfig) *GPDecryptor {
	d := &GPDecryptor{trial: trial{ring: config.KeyRing, replay: config.Replay}}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("zbsec-gp")
	}
	return d
}

// Decrypt authenticates the frame and recovers the GPD command.
// Results and errors follow Decryptor.Decrypt.
func (d *GPDecryptor) Decrypt(frame *GPFrame) (*Result, error) {
	result := &Result{State: StateAwaitingHeader}

	h := frame.Header
	if h == nil {
		return result, structural(ErrNoHeader)
	}
	if err := h.Validate(); err != nil {
		return result, structural(err)
	}
	result.Flow = h.Flow()

	if h.Level == greenpower.LevelNone {
		result.State = StateDecrypted
		result.Plaintext = append([]byte(nil), frame.Payload...)
		return result, nil
	}

	body, mic, err := splitMIC(frame.Payload, h.Level.MICLength())
	if err != nil {
		return result, structural(err)
	}
	if err := checkBudget(h.Level.Encrypted(), len(frame.AssociatedData), len(body)); err != nil {
		return result, structural(err)
	}

	nonce := h.Nonce()
	if d.log != nil {
		d.log.Tracef("GPD %s %s: level %s, counter %d, nonce %x", h.ApplicationID, result.Flow, h.Level, h.FrameCounter, nonce)
	}

	var open opener
	if h.Level.Encrypted() {
		open = decryptVerify(nonce[:], frame.AssociatedData, body, mic)
	} else {
		open = authOnly(nonce[:], frame.AssociatedData, body, mic)
	}

	return d.tryKeys(result, h.FrameCounter, rawKey, open)
}
