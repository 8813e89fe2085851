// Package envelope encrypts clinical payloads into self-describing
// envelopes. The content key is never stored: it is rebuilt from the durable
// cabinet key and the per-package session key, and only its hash travels
// with the envelope.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/cryptox"
	"github.com/dmitrijs2005/cabinetsync/internal/payload"
)

// AlgorithmAESGCM is the only supported algorithm.
const AlgorithmAESGCM = "AES-256-GCM"

const (
	ivSize  = 12
	tagSize = 16
)

// Metadata travels in clear next to the ciphertext and is authenticated as
// GCM additional data.
type Metadata struct {
	CabinetID            string           `json:"cabinet_id"`
	PatientFingerprint   string           `json:"patient_fingerprint"`
	SyncType             payload.SyncType `json:"sync_type"`
	CreatedAtEpochMillis int64            `json:"created_at_epoch_millis"`
}

// Envelope is the encrypted form of one payload.
type Envelope struct {
	Ciphertext      []byte   `json:"ciphertext"`
	IV              []byte   `json:"iv"`
	AuthTag         []byte   `json:"auth_tag"`
	CombinedKeyHash []byte   `json:"combined_key_hash"`
	Algorithm       string   `json:"algorithm"`
	Metadata        Metadata `json:"metadata"`
}

// Marshal returns the blob representation of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses a blob produced by Envelope.Marshal. Malformed input is
// an integrity failure.
func Unmarshal(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", common.ErrIntegrity, err)
	}
	return &e, nil
}

// Engine is a stateless encryption service. Rand and Now can be replaced in
// tests for deterministic output.
type Engine struct {
	Rand io.Reader
	Now  func() time.Time
}

// NewEngine returns an Engine using crypto/rand and the wall clock.
func NewEngine() *Engine {
	return &Engine{Rand: rand.Reader, Now: time.Now}
}

// Encrypt seals p under the combination of cabinetKey and sessionKey. The
// caller-supplied metadata is stamped with the payload sync type and the
// engine clock.
func (e *Engine) Encrypt(p payload.Payload, cabinetKey, sessionKey []byte, meta Metadata) (*Envelope, error) {
	if len(cabinetKey) != cryptox.KeySize || len(sessionKey) != cryptox.KeySize {
		return nil, fmt.Errorf("%w: keys must be %d bytes", common.ErrValidation, cryptox.KeySize)
	}

	plaintext, err := payload.Marshal(p)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	meta.SyncType = p.SyncType()
	meta.CreatedAtEpochMillis = e.now().UnixMilli()
	aad, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	key := cryptox.CombineKeys(cabinetKey, sessionKey)
	defer common.WipeByteArray(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(e.Random(), iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, aad)
	split := len(sealed) - aead.Overhead()

	return &Envelope{
		Ciphertext:      sealed[:split],
		AuthTag:         sealed[split:],
		IV:              iv,
		CombinedKeyHash: cryptox.Hash(key),
		Algorithm:       AlgorithmAESGCM,
		Metadata:        meta,
	}, nil
}

// Decrypt opens env. A wrong key pair yields common.ErrKeyMismatch before
// any decryption is attempted; any tampering with the ciphertext, tag, IV or
// metadata yields common.ErrIntegrity.
func (e *Engine) Decrypt(env *Envelope, cabinetKey, sessionKey []byte) (payload.Payload, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil envelope", common.ErrIntegrity)
	}
	if env.Algorithm != AlgorithmAESGCM {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", common.ErrIntegrity, env.Algorithm)
	}

	key := cryptox.CombineKeys(cabinetKey, sessionKey)
	defer common.WipeByteArray(key)

	if subtle.ConstantTimeCompare(cryptox.Hash(key), env.CombinedKeyHash) != 1 {
		return nil, common.ErrKeyMismatch
	}
	if len(env.IV) != ivSize || len(env.AuthTag) != tagSize {
		return nil, fmt.Errorf("%w: bad iv or tag length", common.ErrIntegrity)
	}

	aad, err := json.Marshal(env.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: encode metadata: %v", common.ErrIntegrity, err)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.AuthTag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aead.Open(nil, env.IV, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", common.ErrIntegrity)
	}
	defer common.WipeByteArray(plaintext)

	p, err := payload.Unmarshal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrIntegrity, err)
	}
	if p.SyncType() != env.Metadata.SyncType {
		return nil, fmt.Errorf("%w: sync type mismatch", common.ErrIntegrity)
	}
	return p, nil
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Random returns Rand, or crypto/rand when Rand is unset.
func (e *Engine) Random() io.Reader {
	if e.Rand == nil {
		return rand.Reader
	}
	return e.Rand
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
