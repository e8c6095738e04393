package keyring

import "errors"

// Key ring errors.
var (
	// ErrInvalidKeyText is returned when key text does not yield exactly 16 bytes.
	ErrInvalidKeyText = errors.New("keyring: key text must be 16 hex bytes or a 16-character quoted string")

	// ErrDuplicateKey is returned when the same pre-configured key is added twice.
	ErrDuplicateKey = errors.New("keyring: duplicate key")

	// ErrInvalidInstallCode is returned for install codes of unsupported length.
	ErrInvalidInstallCode = errors.New("keyring: install code must be 6, 8, 12 or 16 bytes plus CRC")

	// ErrInstallCodeCRC is returned when the install code CRC does not match.
	ErrInstallCodeCRC = errors.New("keyring: install code CRC mismatch")
)
