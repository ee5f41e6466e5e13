package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realzhujunhao/jhchat/internal/errs"
)

func TestLoadWritesDefaultsWhenFileIsMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	_, err := Load(path, DefaultServerConfig())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Initialize))
	assert.FileExists(t, path)
}

func TestLoadReadsBackWhatWasWritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	_, err := Load(path, DefaultServerConfig())
	require.Error(t, err)

	cfg, err := Load(path, DefaultServerConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultServerConfig(), cfg)
}

func TestLoadClientConfigRoundTripsNestedEncryption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	def := DefaultClientConfig(dir)

	_, err := Load(path, def)
	require.Error(t, err)

	cfg, err := Load(path, def)
	require.NoError(t, err)
	assert.Equal(t, def.Encryption.KeyLen, cfg.Encryption.KeyLen)
	assert.Equal(t, def.Encryption.SelfKeyDir, cfg.Encryption.SelfKeyDir)
}
