package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"runtime"
	"strings"
	"unicode/utf8"

	"authd/cmd/internal/config"

	"golang.org/x/crypto/argon2"
)

const phcVersion = argon2.Version

// Params controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes and verifies passwords. The zero value is not usable; see DefaultHasher.
type Hasher struct {
	Params    Params
	MinLength int
	MaxLength int
}

// DefaultHasher returns 64 MiB / 3 iterations with CPU-bound parallelism in [1..4].
func DefaultHasher() Hasher {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}
	return Hasher{
		Params: Params{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		MinLength: 8,
		MaxLength: 256,
	}
}

// FromEnv overlays AUTHD_ARGON2_* and AUTHD_PASSWORD_* settings on DefaultHasher.
//
// Env surface:
//   - AUTHD_PASSWORD_MIN_LEN, AUTHD_PASSWORD_MAX_LEN
//   - AUTHD_ARGON2_MEMORY_KIB, AUTHD_ARGON2_ITERATIONS, AUTHD_ARGON2_PARALLELISM
//   - AUTHD_ARGON2_SALT_LEN, AUTHD_ARGON2_KEY_LEN
func FromEnv() (Hasher, error) {
	return fromSource(config.Default())
}

func fromSource(src *config.Source) (Hasher, error) {
	h := DefaultHasher()

	h.MinLength = src.Int("AUTHD_PASSWORD_MIN_LEN", h.MinLength)
	h.MaxLength = src.Int("AUTHD_PASSWORD_MAX_LEN", h.MaxLength)

	mem := src.Int("AUTHD_ARGON2_MEMORY_KIB", int(h.Params.MemoryKiB))
	iter := src.Int("AUTHD_ARGON2_ITERATIONS", int(h.Params.Iterations))
	par := src.Int("AUTHD_ARGON2_PARALLELISM", int(h.Params.Parallelism))
	salt := src.Int("AUTHD_ARGON2_SALT_LEN", int(h.Params.SaltLength))
	key := src.Int("AUTHD_ARGON2_KEY_LEN", int(h.Params.KeyLength))

	switch {
	case mem < 8*1024 || mem > 1024*1024:
		return Hasher{}, fmt.Errorf("AUTHD_ARGON2_MEMORY_KIB: out of range [8192..1048576]")
	case iter > 20:
		return Hasher{}, fmt.Errorf("AUTHD_ARGON2_ITERATIONS: out of range [1..20]")
	case par > 64:
		return Hasher{}, fmt.Errorf("AUTHD_ARGON2_PARALLELISM: out of range [1..64]")
	case salt < 8 || salt > 64:
		return Hasher{}, fmt.Errorf("AUTHD_ARGON2_SALT_LEN: out of range [8..64]")
	case key < 16 || key > 64:
		return Hasher{}, fmt.Errorf("AUTHD_ARGON2_KEY_LEN: out of range [16..64]")
	case h.MinLength > h.MaxLength:
		return Hasher{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)", h.MinLength, h.MaxLength)
	}

	h.Params = Params{
		MemoryKiB:   uint32(mem),  // #nosec G115 -- range checked above.
		Iterations:  uint32(iter), // #nosec G115 -- range checked above.
		Parallelism: uint8(par),   // #nosec G115 -- range checked above.
		SaltLength:  uint32(salt), // #nosec G115 -- range checked above.
		KeyLength:   uint32(key),  // #nosec G115 -- range checked above.
	}
	return h, nil
}

// Hash returns the PHC-encoded Argon2id hash of plain.
func (h Hasher) Hash(plain string) (string, error) {
	n := utf8.RuneCountInString(plain)
	if n < h.MinLength {
		return "", ErrTooShort
	}
	if h.MaxLength > 0 && n > h.MaxLength {
		return "", ErrTooLong
	}

	salt := make([]byte, h.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, h.Params.Iterations, h.Params.MemoryKiB, h.Params.Parallelism, h.Params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcVersion,
		h.Params.MemoryKiB,
		h.Params.Iterations,
		h.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches encoded.
// Returns (false, ErrInvalidHash) for malformed hashes or hashes whose cost is far above ours.
func (h Hasher) Verify(plain, encoded string) (bool, error) {
	p, salt, want, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !h.withinBounds(p) {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey([]byte(plain), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// withinBounds refuses attacker-controlled cost parameters more than 2x our own.
func (h Hasher) withinBounds(p Params) bool {
	return p.MemoryKiB <= h.Params.MemoryKiB*2 &&
		p.Iterations <= h.Params.Iterations*2 &&
		uint32(p.Parallelism) <= uint32(h.Params.Parallelism)*2 &&
		p.SaltLength >= 8 && p.SaltLength <= 64 &&
		p.KeyLength >= 16 && p.KeyLength <= 128
}

func parsePHC(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", phcVersion) {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var mem, iter, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	return Params{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: uint8(par),       // #nosec G115 -- bounded above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by input length.
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by input length.
	}, salt, key, nil
}
