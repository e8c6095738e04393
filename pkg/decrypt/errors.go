package decrypt

import (
	"errors"
	"fmt"
)

// Decrypt errors.
//
// ErrStructural means the frame itself is malformed and should not be
// retried. ErrNoKeyMatched is a soft failure: the payload stays encrypted
// and the caller shows it as opaque bytes.
var (
	ErrStructural   = errors.New("decrypt: length or level inconsistency")
	ErrNoKeyMatched = errors.New("decrypt: no key matched")

	// ErrSourceUnresolved is returned when the header carries no extended
	// source and the short address has no known mapping. It is an
	// ErrNoKeyMatched: decryption was not attempted.
	ErrSourceUnresolved = fmt.Errorf("%w: extended source address unresolved", ErrNoKeyMatched)
)

// structural wraps a cause as an ErrStructural.
func structural(cause error) error {
	return fmt.Errorf("%w: %w", ErrStructural, cause)
}

// Structural causes raised by this package.
var (
	ErrNoHeader          = errors.New("decrypt: frame has no security header")
	ErrPayloadTooShort   = errors.New("decrypt: payload shorter than MIC")
	ErrControlOffset     = errors.New("decrypt: control byte offset outside associated data")
)
