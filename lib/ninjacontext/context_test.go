package ninjacontext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/thevickypedia/pyninja-go/lib/config"
)

func TestNewWiresEveryCollaborator(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		APIKey:   "test-key",
		Database: filepath.Join(dir, "ninja.db"),
	}
	require.NoError(t, cfg.Validate())

	log := logrus.NewEntry(logrus.New())
	ctx, err := New(cfg, log)
	require.NoError(t, err)
	defer ctx.Close()

	require.NotNil(t, ctx.Store)
	require.NotNil(t, ctx.Session)
	require.NotNil(t, ctx.Auth)
	require.NotNil(t, ctx.MFA)
	require.Same(t, ctx.Store, ctx.Auth.Store)
	require.Same(t, ctx.Session, ctx.Auth.Session)
	require.Same(t, ctx.MFA, ctx.Auth.MFA)

	_, err = os.Stat(cfg.Database)
	require.NoError(t, err)
}

func TestNewAppliesRateLimitConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		APIKey:   "test-key",
		Database: filepath.Join(dir, "ninja.db"),
		RateLimit: []config.RateLimit{
			{MaxRequests: 5, Seconds: 60},
			{MaxRequests: 100, Seconds: 3600},
		},
	}
	require.NoError(t, cfg.Validate())

	log := logrus.NewEntry(logrus.New())
	ctx, err := New(cfg, log)
	require.NoError(t, err)
	defer ctx.Close()

	require.Len(t, ctx.Limiters, 2)
	require.Equal(t, 5, ctx.Limiters[0].MaxRequests)
	require.Equal(t, 100, ctx.Limiters[1].MaxRequests)
}
