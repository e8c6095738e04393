package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/pion/dtls/v3/pkg/crypto/ccm"
)

// Known-answer vectors with 13-byte nonces. CCM* with M > 0 is plain CCM, so
// RFC 3610 (M=8) and Matter SDK (M=16) vectors apply unchanged.
var ccmStarTestVectors = []struct {
	name       string
	key        string
	nonce      string
	aad        string
	plaintext  string
	ciphertext string
	mic        string
}{
	{
		name:       "RFC3610_Vector1",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000003020100a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e",
		ciphertext: "588c979a61c663d2f066d0c2c0f989806d5f6b61dac384",
		mic:        "17e8d12cfdf926e0",
	},
	{
		name:       "RFC3610_Vector2",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000004030201a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		ciphertext: "72c91a36e135f8cf291ca894085c87e3cc15c439c9e43a3b",
		mic:        "a091d56e10400916",
	},
	{
		name:       "SDK_empty_plaintext",
		key:        "404142434445464748494a4b4c4d4e4f",
		nonce:      "101112131415161718191a1b1c",
		aad:        "",
		plaintext:  "",
		ciphertext: "",
		mic:        "32d6f8243a26d0bd98d01b0f448e7773",
	},
	{
		name:       "SDK_matter_91c8d337cf46",
		key:        "0953fa93e7caac9638f58820220a398e",
		nonce:      "00800148202345000012345678",
		aad:        "",
		plaintext:  "120104320308ba072f",
		ciphertext: "79d7dbc0c9b4d43eeb",
		mic:        "281508e50d58dbbd27c39597800f4733",
	},
	// ZigBee-shaped frame: key 16x0x11, source 0x1122334455667788,
	// counter 1, control 0x29, 5-byte NWK header.
	{
		name:       "ZigBee_MIC32",
		key:        "11111111111111111111111111111111",
		nonce:      "88776655443322110100000029",
		aad:        "0802fcff00",
		plaintext:  "deadbeef",
		ciphertext: "a617794f",
		mic:        "6eed3cd4",
	},
	{
		name:       "ZigBee_MIC64",
		key:        "11111111111111111111111111111111",
		nonce:      "88776655443322110100000029",
		aad:        "0802fcff00",
		plaintext:  "deadbeef",
		ciphertext: "a617794f",
		mic:        "6ad1ab2351c5b0c6",
	},
	{
		name:       "ZigBee_MIC128",
		key:        "11111111111111111111111111111111",
		nonce:      "88776655443322110100000029",
		aad:        "0802fcff00",
		plaintext:  "deadbeef",
		ciphertext: "a617794f",
		mic:        "02601327a3cfc73109c4a6092067bbaf",
	},
	{
		name:       "ZigBee_ENC_only",
		key:        "11111111111111111111111111111111",
		nonce:      "88776655443322110100000029",
		aad:        "0802fcff00",
		plaintext:  "deadbeef",
		ciphertext: "a617794f",
		mic:        "",
	},
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func mustKey(t *testing.T, s string) *[KeySize]byte {
	t.Helper()
	var k [KeySize]byte
	if n := copy(k[:], mustHex(t, s)); n != KeySize {
		t.Fatalf("key %q is %d bytes", s, n)
	}
	return &k
}

// countingBlock counts forward block cipher calls.
type countingBlock struct {
	cipher.Block
	calls int
}

func (c *countingBlock) Encrypt(dst, src []byte) {
	c.calls++
	c.Block.Encrypt(dst, src)
}

func (c *countingBlock) Decrypt(dst, src []byte) {
	panic("CCM* must never call the inverse cipher")
}

func TestCCMStarVectors(t *testing.T) {
	for _, tc := range ccmStarTestVectors {
		t.Run(tc.name, func(t *testing.T) {
			key := mustKey(t, tc.key)
			nonce := mustHex(t, tc.nonce)
			aad := mustHex(t, tc.aad)
			plaintext := mustHex(t, tc.plaintext)
			wantCT := mustHex(t, tc.ciphertext)
			wantMIC := mustHex(t, tc.mic)

			ct, mic, err := EncryptAndTag(key, nonce, aad, plaintext, len(wantMIC))
			if err != nil {
				t.Fatalf("EncryptAndTag() error = %v", err)
			}
			if !bytes.Equal(ct, wantCT) {
				t.Errorf("ciphertext = %x, want %x", ct, wantCT)
			}
			if !bytes.Equal(mic, wantMIC) {
				t.Errorf("mic = %x, want %x", mic, wantMIC)
			}

			got, err := DecryptAndVerify(key, nonce, aad, wantCT, wantMIC)
			if err != nil {
				t.Fatalf("DecryptAndVerify() error = %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("plaintext = %x, want %x", got, plaintext)
			}
		})
	}
}

func TestCCMStarEndToEndScenario(t *testing.T) {
	var key [KeySize]byte
	for i := range key {
		key[i] = 0x11
	}
	nonce := BuildCCMStarNonce(0x1122334455667788, 0x00000001, 0x29)
	aad := []byte{0x08, 0x02, 0xfc, 0xff, 0x00}
	plaintext := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	ct, mic, err := EncryptAndTag(&key, nonce[:], aad, plaintext, 4)
	if err != nil {
		t.Fatalf("EncryptAndTag() error = %v", err)
	}

	got, err := DecryptAndVerify(&key, nonce[:], aad, ct, mic)
	if err != nil {
		t.Fatalf("DecryptAndVerify() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("plaintext = %x, want %x", got, plaintext)
	}

	mic[len(mic)-1] ^= 0x01
	if _, err := DecryptAndVerify(&key, nonce[:], aad, ct, mic); !errors.Is(err, ErrCCMAuthFailed) {
		t.Errorf("corrupted MIC: error = %v, want ErrCCMAuthFailed", err)
	}
}

func TestCCMStarRoundtrip(t *testing.T) {
	key := mustKey(t, "000102030405060708090a0b0c0d0e0f")
	nonce := BuildCCMStarNonce(0x0102030405060708, 0xAABBCCDD, 0x2D)

	sizes := []int{0, 1, 15, 16, 17, 31, 32, 100, 1024}
	for _, micLen := range []int{0, 4, 8, 16} {
		for _, aadLen := range []int{0, 1, 14, 15, 40} {
			for _, n := range sizes {
				aad := bytes.Repeat([]byte{0xA5}, aadLen)
				plaintext := make([]byte, n)
				for i := range plaintext {
					plaintext[i] = byte(i * 7)
				}

				ct, mic, err := EncryptAndTag(key, nonce[:], aad, plaintext, micLen)
				if err != nil {
					t.Fatalf("M=%d aad=%d n=%d: EncryptAndTag() error = %v", micLen, aadLen, n, err)
				}
				if len(mic) != micLen {
					t.Fatalf("M=%d: mic length = %d", micLen, len(mic))
				}
				got, err := DecryptAndVerify(key, nonce[:], aad, ct, mic)
				if err != nil {
					t.Fatalf("M=%d aad=%d n=%d: DecryptAndVerify() error = %v", micLen, aadLen, n, err)
				}
				if !bytes.Equal(got, plaintext) {
					t.Fatalf("M=%d aad=%d n=%d: roundtrip mismatch", micLen, aadLen, n)
				}
			}
		}
	}
}

// CCM* with a non-zero MIC must agree byte-for-byte with a standard CCM
// implementation.
func TestCCMStarMatchesPionCCM(t *testing.T) {
	key := mustKey(t, "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf")
	block, err := aes.NewCipher(key[:])
	if err != nil {
		t.Fatal(err)
	}
	nonce := BuildCCMStarNonce(0x8877665544332211, 42, 0x0D)
	aad := []byte("associated header bytes")
	plaintext := []byte("a payload that spans more than one AES block")

	for _, micLen := range []int{4, 8, 16} {
		oracle, err := ccm.NewCCM(block, micLen, NonceSize)
		if err != nil {
			t.Fatalf("ccm.NewCCM(M=%d) error = %v", micLen, err)
		}
		want := oracle.Seal(nil, nonce[:], plaintext, aad)

		ct, mic, err := EncryptAndTag(key, nonce[:], aad, plaintext, micLen)
		if err != nil {
			t.Fatalf("EncryptAndTag() error = %v", err)
		}
		got := append(append([]byte{}, ct...), mic...)
		if !bytes.Equal(got, want) {
			t.Errorf("M=%d: CCM* = %x, pion CCM = %x", micLen, got, want)
		}
	}
}

func TestCCMStarTamperDetection(t *testing.T) {
	key := mustKey(t, "11111111111111111111111111111111")
	nonce := mustHex(t, "88776655443322110100000029")
	aad := mustHex(t, "0802fcff00")
	ct := mustHex(t, "a617794f")
	mic := mustHex(t, "6eed3cd4")

	flip := func(b []byte, bit int) []byte {
		c := append([]byte{}, b...)
		c[bit/8] ^= 1 << (bit % 8)
		return c
	}

	for bit := 0; bit < len(ct)*8; bit++ {
		if _, err := DecryptAndVerify(key, nonce, aad, flip(ct, bit), mic); !errors.Is(err, ErrCCMAuthFailed) {
			t.Errorf("ciphertext bit %d: error = %v, want ErrCCMAuthFailed", bit, err)
		}
	}
	for bit := 0; bit < len(aad)*8; bit++ {
		if _, err := DecryptAndVerify(key, nonce, flip(aad, bit), ct, mic); !errors.Is(err, ErrCCMAuthFailed) {
			t.Errorf("aad bit %d: error = %v, want ErrCCMAuthFailed", bit, err)
		}
	}
	for bit := 0; bit < len(mic)*8; bit++ {
		if _, err := DecryptAndVerify(key, nonce, aad, ct, flip(mic, bit)); !errors.Is(err, ErrCCMAuthFailed) {
			t.Errorf("mic bit %d: error = %v, want ErrCCMAuthFailed", bit, err)
		}
	}
}

func TestCCMStarOverflowGuard(t *testing.T) {
	key := mustKey(t, "000102030405060708090a0b0c0d0e0f")
	block, err := aes.NewCipher(key[:])
	if err != nil {
		t.Fatal(err)
	}
	nonce := make([]byte, NonceSize)

	tests := []struct {
		name    string
		aadLen  int
		dataLen int
		wantErr error
	}{
		{"payload one byte over length field", 0, MaxPayloadSize + 1, ErrCCMPayloadTooLong},
		{"payload over 2^16 blocks", 0, BlockSize*(1<<16) + 1, ErrCCMPayloadTooLong},
		{"aad needs long length prefix", MaxAADSize + 1, 16, ErrCCMAADTooLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			counter := &countingBlock{Block: block}
			c, err := NewCCMStar(counter, 4)
			if err != nil {
				t.Fatal(err)
			}
			aad := make([]byte, tc.aadLen)
			data := make([]byte, tc.dataLen)

			if _, err := c.Open(nonce, aad, data, make([]byte, 4)); !errors.Is(err, tc.wantErr) {
				t.Errorf("Open() error = %v, want %v", err, tc.wantErr)
			}
			if _, _, err := c.Seal(nonce, aad, data); !errors.Is(err, tc.wantErr) {
				t.Errorf("Seal() error = %v, want %v", err, tc.wantErr)
			}
			if counter.calls != 0 {
				t.Errorf("block cipher called %d times before rejection", counter.calls)
			}
		})
	}
}

func TestCCMStarMaxPayloadAccepted(t *testing.T) {
	key := mustKey(t, "000102030405060708090a0b0c0d0e0f")
	nonce := make([]byte, NonceSize)
	plaintext := make([]byte, MaxPayloadSize)
	plaintext[len(plaintext)-1] = 0x5A

	ct, mic, err := EncryptAndTag(key, nonce, nil, plaintext, 16)
	if err != nil {
		t.Fatalf("EncryptAndTag() error = %v", err)
	}
	got, err := DecryptAndVerify(key, nonce, nil, ct, mic)
	if err != nil {
		t.Fatalf("DecryptAndVerify() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("roundtrip mismatch at maximum payload size")
	}
}

func TestCCMStarInvalidParams(t *testing.T) {
	for _, m := range []int{-1, 1, 2, 6, 10, 12, 14, 32} {
		if _, err := NewCCMStar(nil, m); err != ErrCCMInvalidMICSize {
			t.Errorf("NewCCMStar(M=%d) error = %v, want ErrCCMInvalidMICSize", m, err)
		}
	}

	key := mustKey(t, "000102030405060708090a0b0c0d0e0f")
	if _, err := DecryptAndVerify(key, make([]byte, 12), nil, nil, make([]byte, 4)); err != ErrCCMInvalidNonceSize {
		t.Errorf("short nonce: error = %v, want ErrCCMInvalidNonceSize", err)
	}

	c, err := NewCCMStar(newBlock(key), 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Open(make([]byte, NonceSize), nil, nil, make([]byte, 4)); err != ErrCCMInvalidMICSize {
		t.Errorf("Open() with wrong MIC length: error = %v, want ErrCCMInvalidMICSize", err)
	}
}

func TestCCMStarEncryptOnlyHasNoAuthentication(t *testing.T) {
	key := mustKey(t, "11111111111111111111111111111111")
	nonce := mustHex(t, "88776655443322110100000029")

	// With M = 0 tampering goes unnoticed; only the keystream is applied.
	got, err := DecryptAndVerify(key, nonce, []byte{0xFF}, mustHex(t, "a617794e"), nil)
	if err != nil {
		t.Fatalf("DecryptAndVerify() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0xDE, 0xAD, 0xBE, 0xEE}) {
		t.Errorf("plaintext = %x, want deadbeee", got)
	}
}

func TestEncryptBlock(t *testing.T) {
	// FIPS-197 Appendix C.1
	key := mustKey(t, "000102030405060708090a0b0c0d0e0f")
	var in [BlockSize]byte
	copy(in[:], mustHex(t, "00112233445566778899aabbccddeeff"))

	out := EncryptBlock(key, &in)
	if want := mustHex(t, "69c4e0d86a7b0430d8cdb78070b4c55a"); !bytes.Equal(out[:], want) {
		t.Errorf("EncryptBlock() = %x, want %x", out, want)
	}
}
