// Package credential verifies stored password hashes and decides when they
// must be migrated to the current scheme.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sing3demons/oryfm/internal/config"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Scheme tags the format of a stored hash.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	// SchemeBcrypt is the legacy format. Hashes in it are always migrated.
	SchemeBcrypt
	// SchemeArgon2id is the current format, stored in PHC string form.
	SchemeArgon2id
)

func (s Scheme) String() string {
	switch s {
	case SchemeBcrypt:
		return "bcrypt"
	case SchemeArgon2id:
		return "argon2id"
	default:
		return "unknown"
	}
}

var legacyPrefixes = []string{"$2a$", "$2b$", "$2y$"}

const (
	argon2Prefix  = "$argon2id$"
	saltLength    = 16
	keyLength     = 32
	maxMemoryKiB  = config.Argon2MaxMemoryKiB
	maxIterations = config.Argon2MaxTime
)

var (
	ErrEmptyPassword = errors.New("empty_password")
	ErrMalformedHash = errors.New("malformed_hash")
)

// Detect returns the scheme a stored hash was produced with.
func Detect(hash string) Scheme {
	for _, p := range legacyPrefixes {
		if strings.HasPrefix(hash, p) {
			return SchemeBcrypt
		}
	}
	if strings.HasPrefix(hash, argon2Prefix) {
		return SchemeArgon2id
	}
	return SchemeUnknown
}

// Policy hashes new passwords at a configured argon2id strength and treats
// that strength as the minimum for stored hashes.
type Policy struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

// NewPolicy expects cfg to have passed Validate. Unset fields take the
// defaults.
func NewPolicy(cfg config.Argon2Config) *Policy {
	if cfg.Memory <= 0 {
		cfg.Memory = 64 * 1024
	}
	if cfg.Time <= 0 {
		cfg.Time = 3
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &Policy{
		memory:      uint32(cfg.Memory),
		time:        uint32(cfg.Time),
		parallelism: uint8(cfg.Parallelism),
	}
}

// Verify reports whether password matches hash. Malformed hashes never match.
func (p *Policy) Verify(password, hash string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	switch Detect(hash) {
	case SchemeBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	default:
		// anything not recognisably legacy goes through the current scheme
		ph, err := parseArgon2id(hash)
		if err != nil {
			return false
		}
		key := argon2.IDKey([]byte(password), ph.salt, ph.time, ph.memory, ph.parallelism, uint32(len(ph.key)))
		return subtle.ConstantTimeCompare(key, ph.key) == 1
	}
}

// NeedsRehash is true for legacy hashes, for argon2id hashes weaker than the
// configured parameters, and for anything that cannot be parsed.
func (p *Policy) NeedsRehash(hash string) bool {
	switch Detect(hash) {
	case SchemeBcrypt:
		return true
	case SchemeArgon2id:
		ph, err := parseArgon2id(hash)
		if err != nil {
			return true
		}
		return ph.memory < p.memory ||
			ph.time < p.time ||
			ph.parallelism < p.parallelism ||
			len(ph.key) < keyLength
	default:
		return true
	}
}

// Hash produces a current-scheme hash.
func (p *Policy) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.parallelism, keyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type argon2Hash struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// parseArgon2id reads "$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>".
func parseArgon2id(hash string) (*argon2Hash, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, ErrMalformedHash
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, ErrMalformedHash
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, version)
	}

	ph := &argon2Hash{}
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedHash, k, err)
		}
		switch k {
		case "m":
			ph.memory = uint32(n)
		case "t":
			ph.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, fmt.Errorf("%w: parallelism %d", ErrMalformedHash, n)
			}
			ph.parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, k)
		}
	}
	// argon2.IDKey panics on these, and huge values would exhaust memory
	if ph.time < 1 || ph.time > maxIterations || ph.parallelism < 1 ||
		ph.memory < 8*uint32(ph.parallelism) || ph.memory > maxMemoryKiB {
		return nil, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}

	var err error
	if ph.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	if ph.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	if len(ph.key) == 0 {
		return nil, ErrMalformedHash
	}
	return ph, nil
}
