package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/backkem/zbsec/pkg/crypto"
	"github.com/backkem/zbsec/pkg/keyring"
	"github.com/backkem/zbsec/pkg/security"
)

// KeyFile is the YAML key file.
//
//	keys:
//	  - key: '"ZigBeeAlliance09"'
//	    id: link
//	    label: default TC link key
//	  - key: 01:03:05:07:09:0b:0d:0f:00:02:04:06:08:0a:0c:0d
//	    byte_order: reverse
//	  - install_code: 83FED3407A939723A5C639B26916D505C3B5
//	    label: bulb
//	green_power:
//	  - key: c0c1c2c3c4c5c6c7c8c9cacbcccdcecf
//	    key_type: individual
type KeyFile struct {
	Keys       []KeyEntry   `yaml:"keys"`
	GreenPower []GPKeyEntry `yaml:"green_power"`
}

// KeyEntry is one NWK/APS key. Exactly one of Key and InstallCode is set.
type KeyEntry struct {
	Key         string `yaml:"key"`
	ByteOrder   string `yaml:"byte_order"`
	ID          string `yaml:"id"`
	Label       string `yaml:"label"`
	InstallCode string `yaml:"install_code"`
}

// GPKeyEntry is one Green Power key.
type GPKeyEntry struct {
	Key       string `yaml:"key"`
	ByteOrder string `yaml:"byte_order"`
	KeyType   string `yaml:"key_type"`
	Label     string `yaml:"label"`
}

// LoadKeyFile reads and decodes a YAML key file.
func LoadKeyFile(path string) (*KeyFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return DecodeKeyFile(bytes.NewReader(content))
}

// DecodeKeyFile decodes a YAML key file. Unknown fields are rejected.
func DecodeKeyFile(r io.Reader) (*KeyFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var kf KeyFile
	if err := dec.Decode(&kf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse key file yaml: %w", err)
	}
	if err := kf.Validate(); err != nil {
		return nil, err
	}
	return &kf, nil
}

// Validate checks every entry parses.
func (kf *KeyFile) Validate() error {
	if _, err := kf.keys(); err != nil {
		return err
	}
	_, err := kf.gpKeys()
	return err
}

// Ring builds a key ring holding the NWK/APS keys in file order.
// Repeated keys are loaded once.
func (kf *KeyFile) Ring() (*keyring.Ring, error) {
	keys, err := kf.keys()
	if err != nil {
		return nil, err
	}
	return newRing(keys), nil
}

// GreenPowerRing builds a key ring holding the Green Power keys.
func (kf *KeyFile) GreenPowerRing() (*keyring.Ring, error) {
	keys, err := kf.gpKeys()
	if err != nil {
		return nil, err
	}
	return newRing(keys), nil
}

func newRing(keys []keyring.Key) *keyring.Ring {
	ring := keyring.NewRing()
	for _, k := range keys {
		// Duplicates are skipped: the first occurrence keeps its label.
		_ = ring.AddPreconfigured(k)
	}
	return ring
}

func (kf *KeyFile) keys() ([]keyring.Key, error) {
	keys := make([]keyring.Key, 0, len(kf.Keys))
	for i, e := range kf.Keys {
		k, err := e.key()
		if err != nil {
			return nil, fmt.Errorf("config.keys[%d]: %w", i, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (kf *KeyFile) gpKeys() ([]keyring.Key, error) {
	keys := make([]keyring.Key, 0, len(kf.GreenPower))
	for i, e := range kf.GreenPower {
		k, err := e.key()
		if err != nil {
			return nil, fmt.Errorf("config.green_power[%d]: %w", i, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (e KeyEntry) key() (keyring.Key, error) {
	hasKey := strings.TrimSpace(e.Key) != ""
	hasCode := strings.TrimSpace(e.InstallCode) != ""

	switch {
	case hasKey && hasCode:
		return keyring.Key{}, errors.New("key and install_code are mutually exclusive")
	case hasCode:
		if e.ID != "" {
			if id, err := security.ParseKeyID(e.ID); err != nil || id != security.KeyIDLink {
				return keyring.Key{}, errors.New("install_code keys are link keys")
			}
		}
		b, err := keyring.ParseInstallCode(e.InstallCode)
		if err != nil {
			return keyring.Key{}, fmt.Errorf("install_code: %w", err)
		}
		return keyring.Key{Bytes: b, ID: security.KeyIDLink, Label: e.Label}, nil
	case !hasKey:
		return keyring.Key{}, errors.New("key or install_code is required")
	}

	b, err := parseKey(e.Key, e.ByteOrder)
	if err != nil {
		return keyring.Key{}, err
	}
	id, err := security.ParseKeyID(e.ID)
	if err != nil {
		return keyring.Key{}, fmt.Errorf("id: %w", err)
	}
	return keyring.Key{Bytes: b, ID: id, Label: e.Label}, nil
}

// key maps the GP key type to the key class the GP flow uses.
func (e GPKeyEntry) key() (keyring.Key, error) {
	b, err := parseKey(e.Key, e.ByteOrder)
	if err != nil {
		return keyring.Key{}, err
	}

	var id security.KeyID
	switch strings.ToLower(strings.TrimSpace(e.KeyType)) {
	case "", "shared":
		id = security.KeyIDNetwork
	case "individual":
		id = security.KeyIDLink
	default:
		return keyring.Key{}, fmt.Errorf("key_type %q: must be shared or individual", e.KeyType)
	}
	return keyring.Key{Bytes: b, ID: id, Label: e.Label}, nil
}

func parseKey(text, byteOrder string) ([crypto.KeySize]byte, error) {
	order, err := keyring.ParseByteOrder(byteOrder)
	if err != nil {
		return [crypto.KeySize]byte{}, fmt.Errorf("byte_order %q: %w", byteOrder, err)
	}
	b, err := keyring.ParseKey(text, order)
	if err != nil {
		return [crypto.KeySize]byte{}, fmt.Errorf("key: %w", err)
	}
	return b, nil
}
