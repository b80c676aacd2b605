package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRequiresAPIKey(t *testing.T) {
	c := &Config{Database: "ninja.db"}
	require.Error(t, c.Validate())
}

func TestValidateDatabaseSuffix(t *testing.T) {
	c := &Config{APIKey: "k", Database: "ninja.sqlite"}
	require.Error(t, c.Validate())
}

func TestValidateSecretComplexity(t *testing.T) {
	c := &Config{APIKey: "k", Database: "ninja.db", APISecret: "tooshort1A!"}
	require.Error(t, c.Validate())

	c.APISecret = "Sup3rSecret!ValuePassingAllChecks"
	require.NoError(t, c.Validate())
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ninja.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"apikey":"k","database":"ninja.db","ninja_port":9001}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "k", cfg.APIKey)
	require.Equal(t, 9001, cfg.NinjaPort)
	require.Equal(t, 3600, cfg.MonitorSession, "untouched defaults must still be applied")
}

func TestLoadTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ninja.txt")
	require.NoError(t, os.WriteFile(path, []byte("APIKEY=k\nDATABASE=ninja.db\nREMOTE_EXECUTION=true\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "k", cfg.APIKey)
	require.True(t, cfg.RemoteExecution)
}
