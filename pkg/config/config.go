// Package config loads decoder settings from the environment and candidate
// keys from a YAML key file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pion/logging"

	"github.com/backkem/zbsec/pkg/decrypt"
	"github.com/backkem/zbsec/pkg/keyring"
	"github.com/backkem/zbsec/pkg/security"
)

// EnvPrefix is the prefix of every environment variable read by LoadEnv.
const EnvPrefix = "ZBSEC"

// Env holds the settings read from the environment.
type Env struct {
	// DecodeLevel is patched into received control bytes.
	DecodeLevel string `envconfig:"DECODE_LEVEL" default:"enc-mic-32"`

	// TrustWireLevel uses the level bits as received.
	TrustWireLevel bool `envconfig:"TRUST_WIRE_LEVEL" default:"false"`

	// KeysFile is an optional YAML key file.
	KeysFile string `envconfig:"KEYS_FILE"`

	// LogLevel is one of disabled, error, warn, info, debug, trace.
	LogLevel string `envconfig:"LOG_LEVEL" default:"warn"`
}

// LoadEnv reads ZBSEC_* variables.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := env.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &env, nil
}

func (e *Env) validate() error {
	if _, err := security.ParseLevel(e.DecodeLevel); err != nil {
		return fmt.Errorf("%s_DECODE_LEVEL %q: %w", EnvPrefix, e.DecodeLevel, err)
	}
	if _, err := ParseLogLevel(e.LogLevel); err != nil {
		return fmt.Errorf("%s_LOG_LEVEL: %w", EnvPrefix, err)
	}
	if strings.TrimSpace(e.KeysFile) != "" {
		if _, err := os.Stat(e.KeysFile); err != nil {
			return fmt.Errorf("%s_KEYS_FILE: %w", EnvPrefix, err)
		}
	}
	return nil
}

// Level returns the parsed decode level.
func (e *Env) Level() security.Level {
	level, err := security.ParseLevel(e.DecodeLevel)
	if err != nil {
		return decrypt.DefaultDecodeLevel
	}
	return level
}

// LoggerFactory returns a pion logger factory writing to stderr at the
// configured level.
func (e *Env) LoggerFactory() logging.LoggerFactory {
	level, err := ParseLogLevel(e.LogLevel)
	if err != nil {
		level = logging.LogLevelWarn
	}
	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = level
	return factory
}

// ParseLogLevel maps a level name to a pion log level.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "", "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", s)
}

// Session is a fully wired decoder setup.
type Session struct {
	Env       *Env
	Keys      *keyring.Ring
	GPKeys    *keyring.Ring
	Addresses *decrypt.AddressMap
	Replay    *decrypt.ReplayTable
	Decryptor *decrypt.Decryptor
	GP        *decrypt.GPDecryptor
}

// Load reads the environment and the key file it names, and builds the
// decryptors.
func Load() (*Session, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	return NewSession(env)
}

// NewSession builds the key rings and decryptors for env.
func NewSession(env *Env) (*Session, error) {
	keys := &KeyFile{}
	if strings.TrimSpace(env.KeysFile) != "" {
		var err error
		keys, err = LoadKeyFile(env.KeysFile)
		if err != nil {
			return nil, err
		}
	}
	return NewSessionWithKeys(env, keys)
}

// NewSessionWithKeys builds the key rings and decryptors from an already
// decoded key file.
func NewSessionWithKeys(env *Env, keys *KeyFile) (*Session, error) {
	ring, err := keys.Ring()
	if err != nil {
		return nil, err
	}
	gpRing, err := keys.GreenPowerRing()
	if err != nil {
		return nil, err
	}

	factory := env.LoggerFactory()
	addresses := decrypt.NewAddressMap(0)
	replay := decrypt.NewReplayTable(0)

	return &Session{
		Env:       env,
		Keys:      ring,
		GPKeys:    gpRing,
		Addresses: addresses,
		Replay:    replay,
		Decryptor: decrypt.NewDecryptor(decrypt.Config{
			KeyRing:        ring,
			Addresses:      addresses,
			Replay:         replay,
			DecodeLevel:    env.Level(),
			TrustWireLevel: env.TrustWireLevel,
			LoggerFactory:  factory,
		}),
		GP: decrypt.NewGPDecryptor(decrypt.GPConfig{
			KeyRing:       gpRing,
			Replay:        decrypt.NewReplayTable(0),
			LoggerFactory: factory,
		}),
	}, nil
}
