package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPassBytes          = 8
)

var (
	ErrHashFormat           = errors.New("invalid password hash format")
	ErrPasswordTooShort     = errors.New("password too short")
	ErrWeakHasherParameters = errors.New("hasher parameters below minimum")
)

// Config carries argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns moderate interactive-login parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Result is the outcome of a verification: whether the plaintext matched
// and whether the stored hash should be regenerated with the hasher's
// current parameters.
type Result struct {
	Match       bool
	NeedsRehash bool
}

// Hasher hashes and verifies passwords with fixed argon2id parameters.
// Safe for concurrent use.
type Hasher struct {
	config Config
}

// NewHasher validates cfg against the hard minimums and returns a
// ready-to-use Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < minMemoryKB,
		cfg.Time < minTimeCost,
		cfg.Parallelism < minParallelism,
		cfg.SaltLength < minSaltLength,
		cfg.KeyLength < minKeyLength:
		return nil, ErrWeakHasherParameters
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives an argon2id hash of the plaintext and encodes it in PHC
// format. Password bytes are used exactly as provided, without Unicode
// normalization.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) < minPassBytes {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	sum := argon2.IDKey(
		[]byte(plaintext),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify recomputes the hash with the parameters embedded in encoded and
// compares in constant time. NeedsRehash is set when the stored
// parameters are weaker than the hasher's current configuration; it is
// only meaningful when Match is true.
func (h *Hasher) Verify(plaintext, encoded string) (Result, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return Result{}, err
	}

	computed := argon2.IDKey(
		[]byte(plaintext),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	match := subtle.ConstantTimeCompare(computed, parsed.hash) == 1
	return Result{
		Match:       match,
		NeedsRehash: match && h.needsRehash(parsed),
	}, nil
}

func (h *Hasher) needsRehash(parsed *phcHash) bool {
	return h.config.Memory > parsed.memory ||
		h.config.Time > parsed.time ||
		h.config.Parallelism > parsed.parallelism ||
		h.config.KeyLength != uint32(len(parsed.hash))
}

type phcHash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrHashFormat
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if !strings.HasPrefix(parts[2], "v=") || err != nil || version != argon2.Version {
		return nil, ErrHashFormat
	}

	parsed := &phcHash{}
	if err := parseCostParams(parts[3], parsed); err != nil {
		return nil, err
	}

	if parsed.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, ErrHashFormat
	}
	if len(parsed.salt) < int(minSaltLength) {
		return nil, ErrHashFormat
	}

	if parsed.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, ErrHashFormat
	}
	if len(parsed.hash) == 0 {
		return nil, ErrHashFormat
	}

	return parsed, nil
}

func parseCostParams(part string, out *phcHash) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return ErrHashFormat
	}

	seen := map[string]bool{}
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || seen[kv[0]] {
			return ErrHashFormat
		}
		seen[kv[0]] = true

		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return ErrHashFormat
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return ErrHashFormat
			}
			out.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return ErrHashFormat
			}
			out.parallelism = uint8(v)
		default:
			return ErrHashFormat
		}
	}

	if !seen["m"] || !seen["t"] || !seen["p"] {
		return ErrHashFormat
	}
	return nil
}
