package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const refreshValueSize = 32

// NewCode generates a zero-padded numeric one-time code of the given
// length. Each digit is drawn independently from crypto/rand, so the
// result is uniform over [0, 10^digits).
func NewCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// NewRefreshValue generates an opaque high-entropy refresh-token value:
// 32 random bytes, base64url without padding.
func NewRefreshValue() (string, error) {
	var raw [refreshValueSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashCode returns the SHA-256 digest of a one-time code for at-rest
// storage in the secret cache.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// CodeHashEqual compares two code digests in constant time.
func CodeHashEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
