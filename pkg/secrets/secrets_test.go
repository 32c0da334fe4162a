package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "intake/pkg/domain-errors"
)

func TestHash_Matches(t *testing.T) {
	h, err := Hash("dev-token")
	require.NoError(t, err)

	assert.True(t, h.Matches("dev-token"))
	assert.False(t, h.Matches("dev-token "))
	assert.False(t, h.Matches(""))
}

func TestHash_RejectsEmptySecret(t *testing.T) {
	_, err := Hash("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestNilHashedNeverMatches(t *testing.T) {
	var h *Hashed
	assert.False(t, h.Matches("anything"))
}

func TestGenerate(t *testing.T) {
	a, err := Generate(32)
	require.NoError(t, err)
	b, err := Generate(32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
