// Package decrypt drives CCM* decryption of secured ZigBee NWK/APS frames
// and Green Power frames across the candidate keys of a key ring.
//
// A Decryptor takes a parsed auxiliary security header, the associated data
// and the secured payload, builds the nonce, derives the effective key when
// the key identifier asks for it and tries each candidate key in the order
// the ring returns them. The first key that authenticates wins and is
// remembered for the flow so later frames try it first.
//
// The orchestration is a small state machine:
//
//	AwaitingHeader -> TryingKeys -> Decrypted
//	                            \-> Exhausted
package decrypt

// State is the orchestrator state reached for a frame.
type State int

const (
	// StateAwaitingHeader is the initial state; a frame that fails structural
	// checks never leaves it.
	StateAwaitingHeader State = iota

	// StateTryingKeys is entered once the frame is well formed and the nonce
	// source is resolved.
	StateTryingKeys

	// StateDecrypted means a candidate key authenticated the frame.
	StateDecrypted

	// StateExhausted means no candidate authenticated the frame, or
	// decryption could not be attempted.
	StateExhausted
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateAwaitingHeader:
		return "AwaitingHeader"
	case StateTryingKeys:
		return "TryingKeys"
	case StateDecrypted:
		return "Decrypted"
	case StateExhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// Terminal returns true for Decrypted and Exhausted.
func (s State) Terminal() bool {
	return s == StateDecrypted || s == StateExhausted
}
