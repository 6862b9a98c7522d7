package incognito

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns plaintext passwords into self-describing encoded hashes
// (salt and parameters embedded) and checks candidates against them.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// BcryptHasher hashes with bcrypt. A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hashed), nil
}

func (h BcryptHasher) Verify(password, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

const (
	argonSaltLen = 16
	argonTime    = uint32(3)
	argonMemory  = uint32(64 * 1024)
	argonThreads = uint8(2)
	argonKeyLen  = uint32(32)
	argonPrefix  = "$argon2id$"
)

// Argon2Hasher hashes with Argon2id and encodes in PHC format:
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
// Zero fields take the package defaults.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

func (h Argon2Hasher) params() (t, m uint32, p uint8) {
	t, m, p = h.Time, h.Memory, h.Threads
	if t == 0 {
		t = argonTime
	}
	if m == 0 {
		m = argonMemory
	}
	if p == 0 {
		p = argonThreads
	}
	return
}

func (h Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	t, m, p := h.params()
	key := argon2.IDKey([]byte(password), salt, t, m, p, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, m, t, p,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the key with the parameters stored in encoded, so hashes
// made with older settings keep working.
func (h Argon2Hasher) Verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("invalid argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parsing hash version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	var memory, t uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &t, &threads); err != nil {
		return false, fmt.Errorf("parsing hash params: %w", err)
	}
	if t < 1 || threads < 1 {
		return false, fmt.Errorf("invalid argon2 params t=%d p=%d", t, threads)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decoding hash: %w", err)
	}
	if len(expected) == 0 {
		return false, fmt.Errorf("argon2 hash has no key")
	}

	key := argon2.IDKey([]byte(password), salt, t, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

// NewPasswordHasher returns the hasher named by kind ("bcrypt" or "argon2id").
// cost is the bcrypt cost or the argon2 time parameter; 0 keeps the default.
func NewPasswordHasher(kind string, cost int) (PasswordHasher, error) {
	switch strings.ToLower(kind) {
	case "", "bcrypt":
		if cost != 0 && (cost < bcrypt.MinCost || cost > bcrypt.MaxCost) {
			return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
		}
		return BcryptHasher{Cost: cost}, nil
	case "argon2id", "argon2":
		if cost < 0 {
			return nil, fmt.Errorf("invalid argon2 time parameter %d", cost)
		}
		return Argon2Hasher{Time: uint32(cost)}, nil
	}
	return nil, fmt.Errorf("unknown password hasher %q", kind)
}

// CheckPassword verifies password against an encoded hash produced by any of
// the supported hashers, picking the algorithm from the hash prefix.
func CheckPassword(password, encoded string) (bool, error) {
	if strings.HasPrefix(encoded, argonPrefix) {
		return Argon2Hasher{}.Verify(password, encoded)
	}
	return BcryptHasher{}.Verify(password, encoded)
}
