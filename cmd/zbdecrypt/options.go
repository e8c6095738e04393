package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/backkem/zbsec/pkg/greenpower"
	"github.com/backkem/zbsec/pkg/keyring"
	"github.com/backkem/zbsec/pkg/security"
)

// Options holds the command-line flags.
type Options struct {
	// KeysFile overrides ZBSEC_KEYS_FILE.
	KeysFile string

	// Keys are extra keys given on the command line.
	Keys []string

	// Level overrides ZBSEC_DECODE_LEVEL.
	Level string

	// WireLevel trusts the level bits as received.
	WireLevel bool

	// LogLevel overrides ZBSEC_LOG_LEVEL.
	LogLevel string

	// AssociatedData is the frame header up to the secured payload.
	AssociatedData []byte

	// Payload is the secured payload followed by the MIC.
	Payload []byte

	// AuxOffset is the offset of the auxiliary security header in AssociatedData.
	AuxOffset int

	// Source, PAN and Short resolve frames without an extended source.
	Source *uint64
	PAN    uint16
	Short  *uint16

	// GP selects Green Power mode.
	GP        bool
	GPHeader  greenpower.Header
	GPKeyType string
}

// parseOptions parses args into Options.
//
//	-keys        YAML key file
//	-key         extra key (hex or quoted string), repeatable
//	-level       decode level (default from ZBSEC_DECODE_LEVEL)
//	-wire-level  use the level bits as received
//	-log         log level
//	-aad         associated data, hex
//	-payload     secured payload and MIC, hex
//	-aux-offset  offset of the auxiliary header inside -aad
//	-source      extended source address for frames without one
//	-pan, -short PAN ID and short source address
//	-gp          Green Power mode, with -gp-app, -gp-src, -gp-ieee,
//	             -gp-level, -gp-counter, -gp-to-gpd, -gp-key-type
func parseOptions(args []string, output io.Writer) (*Options, error) {
	o := &Options{}
	fs := flag.NewFlagSet("zbdecrypt", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&o.KeysFile, "keys", "", "YAML key file (overrides ZBSEC_KEYS_FILE)")
	fs.Func("key", "extra pre-configured key, hex or quoted string (repeatable)", func(s string) error {
		o.Keys = append(o.Keys, s)
		return nil
	})
	fs.StringVar(&o.Level, "level", "", "decode security level (overrides ZBSEC_DECODE_LEVEL)")
	fs.BoolVar(&o.WireLevel, "wire-level", false, "use the security level bits as received")
	fs.StringVar(&o.LogLevel, "log", "", "log level (overrides ZBSEC_LOG_LEVEL)")
	fs.Func("aad", "associated data, hex", func(s string) (err error) {
		o.AssociatedData, err = parseHex(s)
		return err
	})
	fs.Func("payload", "secured payload followed by the MIC, hex", func(s string) (err error) {
		o.Payload, err = parseHex(s)
		return err
	})
	fs.IntVar(&o.AuxOffset, "aux-offset", 0, "offset of the auxiliary security header in -aad")
	fs.Func("source", "extended source address for frames without one", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return err
		}
		o.Source = &v
		return nil
	})
	fs.Func("pan", "PAN ID", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 16)
		o.PAN = uint16(v)
		return err
	})
	fs.Func("short", "short source address", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return err
		}
		short := uint16(v)
		o.Short = &short
		return nil
	})

	fs.BoolVar(&o.GP, "gp", false, "decode a Green Power frame")
	fs.Func("gp-app", "GP application ID, 0 (SrcID) or 2 (IEEE)", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 8)
		o.GPHeader.ApplicationID = greenpower.ApplicationID(v)
		return err
	})
	fs.Func("gp-src", "GPD SrcID", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 32)
		o.GPHeader.SourceID = uint32(v)
		return err
	})
	fs.Func("gp-ieee", "GPD IEEE address", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 64)
		o.GPHeader.IEEE = v
		return err
	})
	fs.Func("gp-level", "GP security level 0-3", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 2)
		o.GPHeader.Level = greenpower.Level(v)
		return err
	})
	fs.Func("gp-counter", "GP security frame counter", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 32)
		o.GPHeader.FrameCounter = uint32(v)
		return err
	})
	toGPD := fs.Bool("gp-to-gpd", false, "frame is sent to the GPD")
	fs.StringVar(&o.GPKeyType, "gp-key-type", "shared", "GP key type, shared or individual")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *toGPD {
		o.GPHeader.Direction = greenpower.ToGPD
	}
	switch o.GPKeyType {
	case "shared":
		o.GPHeader.KeyType = greenpower.KeyShared
	case "individual":
		o.GPHeader.KeyType = greenpower.KeyIndividual
	default:
		return nil, fmt.Errorf("-gp-key-type must be shared or individual, got %q", o.GPKeyType)
	}

	if o.Level != "" {
		if _, err := security.ParseLevel(o.Level); err != nil {
			return nil, fmt.Errorf("-level %q: %w", o.Level, err)
		}
	}
	if len(o.AssociatedData) == 0 {
		return nil, errors.New("-aad is required")
	}
	if !o.GP && (o.AuxOffset < 0 || o.AuxOffset >= len(o.AssociatedData)) {
		return nil, fmt.Errorf("-aux-offset %d outside -aad", o.AuxOffset)
	}
	for _, k := range o.Keys {
		if _, err := keyring.ParseKey(k, keyring.ByteOrderNormal); err != nil {
			return nil, fmt.Errorf("-key %q: %w", k, err)
		}
	}
	return o, nil
}

// parseHex decodes hex digits, ignoring ':', '-' and whitespace.
func parseHex(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', ' ', '\t', '\n':
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(s)
}
