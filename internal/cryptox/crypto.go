// Package cryptox holds the key handling primitives of cabinetsync: cabinet
// key derivation, session key generation, fingerprints and key wrapping.
// Raw keys never leave this package in persisted form; callers store only
// hashes, salts or wrapped keys.
package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the size of every symmetric key handled here (256 bits).
	KeySize = 32
	// SaltSize is the size of freshly generated cabinet key salts.
	SaltSize = 32
	// KDFIterations is the PBKDF2 work factor for cabinet keys.
	KDFIterations = 100_000

	fingerprintLen = 16
	wrapNonceSize  = 24
)

// IdentityRecord holds the identity fields used to detect duplicate patient
// records created independently in different cabinets.
type IdentityRecord struct {
	FirstName string
	LastName  string
	BirthDate string
	Email     string
}

// DeriveCabinetKey stretches "cabinet_"+cabinetID with PBKDF2-HMAC-SHA256.
// When salt is empty a fresh salt is read from r. The returned salt must
// be persisted next to the key hash; the same (cabinetID, salt) pair always
// yields the same key.
func DeriveCabinetKey(r io.Reader, cabinetID string, salt []byte) (key []byte, usedSalt []byte, err error) {
	if cabinetID == "" {
		return nil, nil, fmt.Errorf("%w: empty cabinet id", common.ErrValidation)
	}
	if len(salt) == 0 {
		salt, err = randomBytes(r, SaltSize)
		if err != nil {
			return nil, nil, err
		}
	}
	key = pbkdf2.Key([]byte("cabinet_"+cabinetID), salt, KDFIterations, KeySize, sha256.New)
	return key, salt, nil
}

// GenerateSessionKey reads a fresh 256-bit key from r. It is never logged
// or persisted in clear.
func GenerateSessionKey(r io.Reader) ([]byte, error) {
	return randomBytes(r, KeySize)
}

// Hash returns the SHA-256 digest of key. It is used for verification and
// fingerprinting only.
func Hash(key []byte) []byte {
	h := sha256.Sum256(key)
	return h[:]
}

// CombineKeys merges the durable cabinet key and the ephemeral session key
// into one symmetric key by hashing their concatenation.
func CombineKeys(cabinetKey, sessionKey []byte) []byte {
	buf := make([]byte, 0, len(cabinetKey)+len(sessionKey))
	buf = append(buf, cabinetKey...)
	buf = append(buf, sessionKey...)
	defer common.WipeByteArray(buf)
	return Hash(buf)
}

// PatientFingerprint is a short, non-reversible join key for a patient of a
// cabinet.
func PatientFingerprint(patientLocalID, cabinetID string) string {
	return shortHash(cabinetID + ":" + patientLocalID)
}

// RecordFingerprint hashes normalized identity fields so that two records of
// the same person produce the same value.
func RecordFingerprint(r IdentityRecord) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return shortHash(strings.Join([]string{
		norm(r.FirstName),
		norm(r.LastName),
		strings.TrimSpace(r.BirthDate),
		norm(r.Email),
	}, "|"))
}

// SessionWrappingKey derives the key used to wrap a package's session key.
// Only holders of the cabinet key can rebuild it, and it is bound to both
// the package and its target.
func SessionWrappingKey(cabinetKey []byte, packageID, targetID string) ([]byte, error) {
	r := hkdf.New(sha256.New, cabinetKey, []byte(packageID), []byte("cabinetsync/session-key/"+targetID))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive wrapping key: %w", err)
	}
	return out, nil
}

// WrapKey seals key with NaCl secretbox under kek. The nonce is read from r
// and prefixed to the output.
func WrapKey(r io.Reader, kek, key []byte) ([]byte, error) {
	secret, err := toKeyArray(kek)
	if err != nil {
		return nil, err
	}
	n, err := randomBytes(r, wrapNonceSize)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	var nonce [wrapNonceSize]byte
	copy(nonce[:], n)
	return secretbox.Seal(nonce[:], key, &nonce, &secret), nil
}

// UnwrapKey opens a value produced by WrapKey. Any authentication failure is
// reported as common.ErrIntegrity.
func UnwrapKey(kek, wrapped []byte) ([]byte, error) {
	secret, err := toKeyArray(kek)
	if err != nil {
		return nil, err
	}
	if len(wrapped) < wrapNonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: wrapped key too short", common.ErrIntegrity)
	}
	var nonce [wrapNonceSize]byte
	copy(nonce[:], wrapped[:wrapNonceSize])
	key, ok := secretbox.Open(nil, wrapped[wrapNonceSize:], &nonce, &secret)
	if !ok {
		return nil, fmt.Errorf("%w: cannot unwrap key", common.ErrIntegrity)
	}
	return key, nil
}

// Wipe zeroes key material.
func Wipe(keys ...[]byte) {
	for _, k := range keys {
		common.WipeByteArray(k)
	}
}

func toKeyArray(k []byte) ([KeySize]byte, error) {
	var out [KeySize]byte
	if len(k) != KeySize {
		return out, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrValidation, KeySize, len(k))
	}
	copy(out[:], k)
	return out, nil
}

func randomBytes(r io.Reader, n int) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no randomness source", common.ErrValidation)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:fingerprintLen]
}
