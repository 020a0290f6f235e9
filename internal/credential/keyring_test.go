// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

func typesSession(id string, cookies []string) types.CredentialSession {
	return types.CredentialSession{
		SessionID:       id,
		Username:        "alice",
		Password:        "secret",
		IsAuthenticated: true,
		Cookies:         cookies,
	}
}

func TestKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()
	k := NewKeyring()

	_, _, err := k.Load()
	assert.ErrorIs(t, err, ErrNoSavedLogin)

	require.NoError(t, k.Save("alice", "secret"))
	user, pass, err := k.Load()
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "secret", pass)

	require.NoError(t, k.Delete())
	_, _, err = k.Load()
	assert.ErrorIs(t, err, ErrNoSavedLogin)
}

func TestKeyringDeleteWhenEmpty(t *testing.T) {
	keyring.MockInit()
	assert.NoError(t, NewKeyring().Delete())
}

func TestKeyringSaveRequiresUsername(t *testing.T) {
	keyring.MockInit()
	assert.Error(t, NewKeyring().Save("", "x"))
}
