package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
)

// CodeAlphabet excludes visually ambiguous characters (I, L, O, 0, 1).
const CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeWidth is the fixed code length. 8 characters over a 31-character
// alphabet is ~39.6 bits of entropy, chosen over a short numeric code
// because validation is reachable without an authenticated session.
const CodeWidth = 8

const (
	codeSaltLen = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// CodeIssuer derives, hashes, and verifies proof-of-ownership codes.
//
// Codes are derived deterministically from a server-side secret, the
// identity key hash, and the record's expiry instant. The same live record
// therefore always yields the same code, so duplicate request-code calls can
// re-send without the plaintext ever being persisted.
type CodeIssuer struct {
	secret []byte
}

// NewCodeIssuer creates an issuer from the server code secret.
func NewCodeIssuer(secret string) *CodeIssuer {
	return &CodeIssuer{secret: []byte(secret)}
}

// Derive computes the code for an identity key and expiry instant. The HMAC
// stream is mapped onto the alphabet with rejection sampling so every
// character is uniform.
func (ci *CodeIssuer) Derive(identityKeyHash string, expiresAt time.Time) string {
	mac := hmac.New(sha256.New, ci.secret)
	fmt.Fprintf(mac, "%s|%d", identityKeyHash, expiresAt.Unix())
	stream := mac.Sum(nil)

	// 256 % 31 == 8, so bytes >= 248 would bias the low characters.
	limit := byte(256 - 256%len(CodeAlphabet))

	var b strings.Builder
	counter := uint64(0)
	for b.Len() < CodeWidth {
		for _, v := range stream {
			if v < limit {
				b.WriteByte(CodeAlphabet[int(v)%len(CodeAlphabet)])
				if b.Len() == CodeWidth {
					break
				}
			}
		}
		if b.Len() < CodeWidth {
			// Rare: extend the stream deterministically.
			counter++
			mac.Reset()
			fmt.Fprintf(mac, "%s|%d|%d", identityKeyHash, expiresAt.Unix(), counter)
			stream = mac.Sum(nil)
		}
	}
	return b.String()
}

// NewSalt returns a fresh random salt for hashing one code record.
func NewSalt() ([]byte, error) {
	salt := make([]byte, codeSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate code salt: %w", err)
	}
	return salt, nil
}

// HashCode computes the argon2id hash stored in the code record.
func HashCode(code string, salt []byte) []byte {
	return argon2.IDKey([]byte(code), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyCode recomputes the hash for a submitted code and compares it to the
// stored one in constant time. It never short-circuits on first mismatch.
func VerifyCode(code string, salt, storedHash []byte) bool {
	computed := HashCode(code, salt)
	return subtle.ConstantTimeCompare(computed, storedHash) == 1
}

// ValidCodeFormat reports whether a submitted code has the fixed width and
// alphabet. Used for input validation before any stateful work.
func ValidCodeFormat(code string) bool {
	if len(code) != CodeWidth {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(CodeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// IdentityKeyHash is the stable pseudonymous key for an identity used in
// code records, lock keys, and audit rows.
func IdentityKeyHash(identityID string) string {
	sum := sha256.Sum256([]byte(identityID))
	return hex.EncodeToString(sum[:])
}

// EmailHash pseudonymizes an email address for audit records.
func EmailHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// SourceHash pseudonymizes a network origin for audit records.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// LockKey maps an identity key hash onto the 64-bit lock keyspace.
func LockKey(identityKeyHash string) string {
	h := fnv.New64a()
	h.Write([]byte(identityKeyHash))
	return fmt.Sprintf("cleanup:%016x", h.Sum64())
}
