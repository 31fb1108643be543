package invitations

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	id, token, err := Generate()
	require.NoError(t, err)

	require.NotEqual(t, uuid.Nil, id)
	require.True(t, strings.HasPrefix(token, TokenPrefix))
	require.True(t, ValidateTokenFormat(token))
}

func TestGenerate_Uniqueness(t *testing.T) {
	const n = 200

	ids := make(map[uuid.UUID]bool, n)
	tokens := make(map[string]bool, n)

	for i := 0; i < n; i++ {
		id, token, err := Generate()
		require.NoError(t, err)

		require.False(t, ids[id], "duplicate invitation ID")
		require.False(t, tokens[token], "duplicate invitation token")
		ids[id] = true
		tokens[token] = true
	}
}

func TestValidateTokenFormat_InvalidPrefix(t *testing.T) {
	require.False(t, ValidateTokenFormat("nope_abc"))
}

func TestValidateTokenFormat_Truncated(t *testing.T) {
	_, token, err := Generate()
	require.NoError(t, err)

	require.False(t, ValidateTokenFormat(token[:len(token)-4]))
}

func TestValidateTokenFormat_NotBase64(t *testing.T) {
	require.False(t, ValidateTokenFormat(TokenPrefix+"!!!not-base64!!!"))
}
