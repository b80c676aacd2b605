package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ninja.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBlockRowCountNeverExceedsOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutBlock(ctx, "1.2.3.4", 1000))
	require.NoError(t, s.PutBlock(ctx, "1.2.3.4", 2000))

	until, err := s.GetBlockUntil(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.EqualValues(t, 2000, until, "replace semantics: second write wins")

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM `+TableAuthErrors+` WHERE host = ?`, "1.2.3.4").Scan(&count))
	require.Equal(t, 1, count)
}

func TestMFATokenSingleton(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpdateToken(ctx, TableMFAToken, Token{Token: "a", Expiry: 100, Requester: "email"}))
	require.NoError(t, s.UpdateToken(ctx, TableMFAToken, Token{Token: "b", Expiry: 200, Requester: "push"}))

	tok, err := s.GetToken(ctx, TableMFAToken)
	require.NoError(t, err)
	require.Equal(t, "b", tok.Token)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM `+TableMFAToken).Scan(&count))
	require.Equal(t, 1, count)
}

func TestDeleteTokenReportsAbsence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	existed, err := s.DeleteToken(ctx, TableMFAToken)
	require.NoError(t, err)
	require.False(t, existed)

	require.NoError(t, s.UpdateToken(ctx, TableMFAToken, Token{Token: "a", Expiry: 100, Requester: "email"}))
	existed, err = s.DeleteToken(ctx, TableMFAToken)
	require.NoError(t, err)
	require.True(t, existed)
}

func TestRemoveBlock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutBlock(ctx, "host", 100))
	require.NoError(t, s.RemoveBlock(ctx, "host"))

	until, err := s.GetBlockUntil(ctx, "host")
	require.NoError(t, err)
	require.Zero(t, until)
}
