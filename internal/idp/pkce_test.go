package idp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateState_UniqueAndLongEnough(t *testing.T) {
	a, err := GenerateState()
	require.NoError(t, err)
	b, err := GenerateState()
	require.NoError(t, err)

	// 32 random bytes encode to 43 base64url chars (256 bits of entropy).
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestGenerateCodeVerifier_Charset(t *testing.T) {
	v, err := GenerateCodeVerifier()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(v), 43)
	assert.LessOrEqual(t, len(v), 128)
	for _, c := range v {
		ok := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '.' || c == '_' || c == '~'
		assert.True(t, ok, "verifier contains reserved character %q", c)
	}
}

func TestCodeChallengeS256_Deterministic(t *testing.T) {
	v, err := GenerateCodeVerifier()
	require.NoError(t, err)

	assert.Equal(t, CodeChallengeS256(v), CodeChallengeS256(v))

	other, err := GenerateCodeVerifier()
	require.NoError(t, err)
	assert.NotEqual(t, CodeChallengeS256(v), CodeChallengeS256(other))
}

func TestCodeChallengeS256_KnownVector(t *testing.T) {
	// Test vector from RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", CodeChallengeS256(verifier))
}

func TestGenerateNonce(t *testing.T) {
	a, err := GenerateNonce()
	require.NoError(t, err)
	b, err := GenerateNonce()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
