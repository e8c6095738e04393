package decrypt

import (
	"errors"

	"github.com/pion/logging"

	"github.com/backkem/zbsec/pkg/crypto"
	"github.com/backkem/zbsec/pkg/keyring"
)

// Result is the outcome of one Decrypt call.
type Result struct {
	// State is the terminal state reached, or StateAwaitingHeader if the
	// frame was rejected as malformed.
	State State

	// Plaintext is the recovered payload without MIC. Set only when State is
	// StateDecrypted.
	Plaintext []byte

	// Key is the candidate that authenticated the frame. Nil when the level
	// carries no security or no key matched.
	Key *keyring.Key

	// Flow identifies the security association of the frame.
	Flow keyring.Flow

	// Tried is the number of candidate keys attempted.
	Tried int

	// Replayed is set when the frame authenticated but its frame counter was
	// already seen for the flow. Requires a ReplayTable.
	Replayed bool
}

// opener authenticates the frame with one effective key and returns the
// plaintext.
type opener func(key *[crypto.KeySize]byte) ([]byte, error)

// deriver maps a candidate to the key CCM* is run with.
type deriver func(key *keyring.Key) [crypto.KeySize]byte

// rawKey uses the candidate bytes as-is.
func rawKey(key *keyring.Key) [crypto.KeySize]byte {
	return key.Bytes
}

// trial holds what a frame's key trial loop needs besides the frame.
type trial struct {
	ring   *keyring.Ring
	replay *ReplayTable
	log    logging.LeveledLogger
}

// tryKeys runs open with each candidate of the ring for result.Flow, in ring
// order, and stops at the first key that authenticates.
// A failing candidate leaves no trace besides the Tried count.
func (t *trial) tryKeys(result *Result, counter uint32, derive deriver, open opener) (*Result, error) {
	ring, log := t.ring, t.log
	result.State = StateTryingKeys

	var candidates []*keyring.Key
	if ring != nil {
		candidates = ring.CandidatesFor(result.Flow)
	}

	for _, candidate := range candidates {
		result.Tried++
		effective := derive(candidate)

		plaintext, err := open(&effective)
		if errors.Is(err, crypto.ErrCCMAuthFailed) {
			if log != nil {
				log.Tracef("flow %s: %s did not authenticate", result.Flow, candidate)
			}
			continue
		}
		if err != nil {
			result.State = StateAwaitingHeader
			return result, structural(err)
		}

		ring.Remember(result.Flow, candidate)
		result.State = StateDecrypted
		result.Plaintext = plaintext
		result.Key = candidate
		if t.replay != nil && !t.replay.Accept(result.Flow, counter) {
			result.Replayed = true
			if log != nil {
				log.Warnf("flow %s: frame counter %d replayed", result.Flow, counter)
			}
		}
		if log != nil {
			log.Debugf("flow %s: decrypted with %s after %d attempt(s)", result.Flow, candidate, result.Tried)
		}
		return result, nil
	}

	result.State = StateExhausted
	if log != nil {
		log.Debugf("flow %s: no key matched, %d candidate(s) tried", result.Flow, result.Tried)
	}
	return result, ErrNoKeyMatched
}

// splitMIC separates the trailing MIC from the secured payload.
func splitMIC(payload []byte, micLen int) (body, mic []byte, err error) {
	if len(payload) < micLen {
		return nil, nil, ErrPayloadTooShort
	}
	n := len(payload) - micLen
	return payload[:n], payload[n:], nil
}

// authOnly returns an opener for integrity-only levels: the MIC covers aad
// followed by the cleartext payload and nothing is encrypted, so the
// payload is returned unchanged once the tag verifies.
func authOnly(nonce, aad, payload, mic []byte) opener {
	authData := make([]byte, 0, len(aad)+len(payload))
	authData = append(authData, aad...)
	authData = append(authData, payload...)

	return func(key *[crypto.KeySize]byte) ([]byte, error) {
		if _, err := crypto.DecryptAndVerify(key, nonce, authData, nil, mic); err != nil {
			return nil, err
		}
		return append([]byte(nil), payload...), nil
	}
}

// decryptVerify returns an opener for encrypting levels.
func decryptVerify(nonce, aad, ciphertext, mic []byte) opener {
	return func(key *[crypto.KeySize]byte) ([]byte, error) {
		return crypto.DecryptAndVerify(key, nonce, aad, ciphertext, mic)
	}
}

// checkBudget rejects frames whose lengths overflow the 16-bit CCM* budget
// before any key is tried.
func checkBudget(encrypted bool, aadLen, bodyLen int) error {
	if encrypted {
		if bodyLen > crypto.MaxPayloadSize {
			return crypto.ErrCCMPayloadTooLong
		}
		if aadLen > crypto.MaxAADSize {
			return crypto.ErrCCMAADTooLong
		}
		return nil
	}
	if aadLen+bodyLen > crypto.MaxAADSize {
		return crypto.ErrCCMAADTooLong
	}
	return nil
}
