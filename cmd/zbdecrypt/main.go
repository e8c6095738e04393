// zbdecrypt authenticates and decrypts a single secured ZigBee NWK/APS or
// Green Power frame given as hex.
//
// Usage:
//
//	zbdecrypt [options] -aad <hex> -payload <hex>
//
// Keys come from the YAML file named by -keys or ZBSEC_KEYS_FILE and from
// repeated -key flags. The decode level defaults to ZBSEC_DECODE_LEVEL.
//
// Example:
//
//	zbdecrypt -key 11111111111111111111111111111111 -aux-offset 8 \
//	    -aad 0802fcff00001e422801000000887766554433221100 \
//	    -payload 3ef8368c571e0c9005cc63f4c2
//
// Exit status is 0 when the frame was decrypted, 1 on usage or malformed
// frame errors and 2 when no key matched.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/backkem/zbsec/pkg/config"
	"github.com/backkem/zbsec/pkg/decrypt"
	"github.com/backkem/zbsec/pkg/greenpower"
	"github.com/backkem/zbsec/pkg/keyring"
	"github.com/backkem/zbsec/pkg/security"
)

const (
	exitOK         = 0
	exitError      = 1
	exitNoKeyMatch = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "zbdecrypt: %v\n", err)
		return exitError
	}

	session, err := newSession(opts)
	if err != nil {
		fmt.Fprintf(stderr, "zbdecrypt: %v\n", err)
		return exitError
	}

	var result *decrypt.Result
	if opts.GP {
		result, err = session.GP.Decrypt(&decrypt.GPFrame{
			Header:         &opts.GPHeader,
			AssociatedData: opts.AssociatedData,
			Payload:        opts.Payload,
		})
	} else {
		result, err = decryptFrame(session, opts)
	}

	switch {
	case errors.Is(err, decrypt.ErrNoKeyMatched):
		fmt.Fprintf(stdout, "flow %s: payload left encrypted (%v, %d key(s) tried)\n", result.Flow, err, result.Tried)
		return exitNoKeyMatch
	case err != nil:
		fmt.Fprintf(stderr, "zbdecrypt: %v\n", err)
		return exitError
	}

	key := "no key"
	if result.Key != nil {
		key = result.Key.String()
	}
	replayed := ""
	if result.Replayed {
		replayed = " (replayed)"
	}
	fmt.Fprintf(stdout, "flow %s: %s with %s%s\n", result.Flow, result.State, key, replayed)
	fmt.Fprintln(stdout, hex.EncodeToString(result.Plaintext))
	return exitOK
}

// newSession loads the environment, applies flag overrides and adds the
// command-line keys after the key file ones.
func newSession(opts *Options) (*config.Session, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	if opts.KeysFile != "" {
		env.KeysFile = opts.KeysFile
	}
	if opts.Level != "" {
		env.DecodeLevel = opts.Level
	}
	if opts.WireLevel {
		env.TrustWireLevel = true
	}
	if opts.LogLevel != "" {
		env.LogLevel = opts.LogLevel
	}

	session, err := config.NewSession(env)
	if err != nil {
		return nil, err
	}

	gpID := security.KeyIDNetwork
	if opts.GPHeader.KeyType == greenpower.KeyIndividual {
		gpID = security.KeyIDLink
	}
	for i, text := range opts.Keys {
		b, err := keyring.ParseKey(text, keyring.ByteOrderNormal)
		if err != nil {
			return nil, err
		}
		label := fmt.Sprintf("-key #%d", i+1)
		if opts.GP {
			_ = session.GPKeys.AddPreconfigured(keyring.Key{Bytes: b, ID: gpID, Label: label})
		} else {
			_ = session.Keys.AddPreconfigured(keyring.Key{Bytes: b, ID: security.KeyIDNetwork, Label: label})
		}
	}
	return session, nil
}

// decryptFrame parses the auxiliary header out of the associated data and
// decrypts the NWK/APS frame.
func decryptFrame(session *config.Session, opts *Options) (*decrypt.Result, error) {
	header, n, err := security.ParseHeader(opts.AssociatedData[opts.AuxOffset:])
	if err != nil {
		return &decrypt.Result{}, fmt.Errorf("%w: %w", decrypt.ErrStructural, err)
	}
	if opts.AuxOffset+n != len(opts.AssociatedData) {
		return &decrypt.Result{}, fmt.Errorf("%w: %d bytes after the auxiliary header in -aad", decrypt.ErrStructural, len(opts.AssociatedData)-opts.AuxOffset-n)
	}

	if opts.Source != nil && opts.Short != nil {
		session.Addresses.Learn(opts.PAN, *opts.Short, *opts.Source)
	}

	frame := &decrypt.Frame{
		Header:         header,
		AssociatedData: opts.AssociatedData,
		Payload:        opts.Payload,
		ControlOffset:  opts.AuxOffset,
		ShortSource:    opts.Short,
		PANID:          opts.PAN,
	}
	if header.Source == nil && opts.Source != nil && opts.Short == nil {
		// Without a short address the extended source is given directly.
		frame.ShortSource = new(uint16)
		session.Addresses.Learn(opts.PAN, 0, *opts.Source)
	}
	return session.Decryptor.Decrypt(frame)
}
