package credential

import (
	"strings"
	"testing"

	"github.com/sing3demons/oryfm/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// low parameters keep the tests fast
var testParams = config.Argon2Config{Memory: 1024, Time: 1, Parallelism: 1}

func legacyHash(t *testing.T, password, prefix string) string {
	t.Helper()
	raw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return prefix + strings.TrimPrefix(string(raw), "$2a$")
}

func TestDetect(t *testing.T) {
	assert.Equal(t, SchemeBcrypt, Detect("$2b$10$abc"))
	assert.Equal(t, SchemeBcrypt, Detect("$2y$10$abc"))
	assert.Equal(t, SchemeArgon2id, Detect("$argon2id$v=19$m=1,t=1,p=1$a$b"))
	assert.Equal(t, SchemeUnknown, Detect("plaintext"))
	assert.Equal(t, "argon2id", SchemeArgon2id.String())
}

func TestLegacyHashVerifiesAndNeedsRehash(t *testing.T) {
	p := NewPolicy(testParams)
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		t.Run(prefix, func(t *testing.T) {
			hash := legacyHash(t, "s3cret-pass", prefix)
			assert.True(t, p.Verify("s3cret-pass", hash))
			assert.False(t, p.Verify("wrong", hash))
			assert.True(t, p.NeedsRehash(hash))
		})
	}
}

func TestCurrentHash(t *testing.T) {
	p := NewPolicy(testParams)
	hash, err := p.Hash("correct horse")
	require.NoError(t, err)

	assert.Equal(t, SchemeArgon2id, Detect(hash))
	assert.True(t, p.Verify("correct horse", hash))
	assert.False(t, p.Verify("battery staple", hash))
	assert.False(t, p.NeedsRehash(hash))
}

func TestNeedsRehashAgainstConfiguredStrength(t *testing.T) {
	weak := NewPolicy(testParams)
	hash, err := weak.Hash("pw")
	require.NoError(t, err)

	stronger := NewPolicy(config.Argon2Config{Memory: 2048, Time: 2, Parallelism: 1})
	assert.True(t, stronger.NeedsRehash(hash))
	assert.True(t, stronger.Verify("pw", hash), "weaker hashes still verify")

	strongHash, err := stronger.Hash("pw")
	require.NoError(t, err)
	assert.False(t, weak.NeedsRehash(strongHash), "stronger than required is fine")
}

func TestMalformedHashFailsClosed(t *testing.T) {
	p := NewPolicy(testParams)
	cases := []string{
		"",
		"not-a-hash",
		"$argon2id$",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$!!!",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=1024,t=0,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=0$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1,x=2$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$a2V5",
	}
	for _, hash := range cases {
		t.Run(hash, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, p.Verify("pw", hash))
				assert.True(t, p.NeedsRehash(hash))
			})
		})
	}
}

func TestRehashRoundTrip(t *testing.T) {
	p := NewPolicy(testParams)
	stored := legacyHash(t, "migrate-me", "$2b$")
	require.True(t, p.Verify("migrate-me", stored))
	require.True(t, p.NeedsRehash(stored))

	rehashed, err := p.Hash("migrate-me")
	require.NoError(t, err)
	assert.True(t, p.Verify("migrate-me", rehashed))
	assert.False(t, p.NeedsRehash(rehashed))
}

func TestSmallestValidParamsRoundTrip(t *testing.T) {
	cfg := config.Argon2Config{Memory: 32, Time: 1, Parallelism: 4}
	require.NoError(t, cfg.Validate())

	p := NewPolicy(cfg)
	hash, err := p.Hash("pw")
	require.NoError(t, err)
	assert.True(t, p.Verify("pw", hash))
	assert.False(t, p.NeedsRehash(hash))
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	_, err := NewPolicy(testParams).Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}
