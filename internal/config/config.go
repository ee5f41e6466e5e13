// Package config loads the human-editable TOML configuration for either
// role. On first run, when no file exists at the expected path, it writes
// one populated with defaults and reports Initialize so the caller can
// exit and ask the operator to review it before restarting.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"

	"github.com/realzhujunhao/jhchat/internal/errs"
)

// ServerConfig is everything the server role needs.
type ServerConfig struct {
	IP   string `toml:"ip"`
	Port string `toml:"port"`
}

// DefaultServerConfig matches the values written on first run.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{IP: "0.0.0.0", Port: "2333"}
}

// EncryptionConfig is the client's view of its key material and the
// unsafe-key detection policy; the keys themselves live on disk under
// these directories, never in the config file.
type EncryptionConfig struct {
	KeyLen int `toml:"key_len"`

	// SelfKeyDir holds this user's own keypair.
	SelfKeyDir string `toml:"self_key_dir"`
	// UnsafeKeyDir holds public keys received in-band, via the server.
	UnsafeKeyDir string `toml:"unsafe_key_dir"`
	// SafeKeyDir holds public keys exchanged out-of-band (email, in person).
	SafeKeyDir string `toml:"safe_key_dir"`

	// DummyMessage is sent to the peer, encrypted with the key received
	// in-band for it, in place of a real message when that key doesn't
	// match the one on file in SafeKeyDir — so a tampering server learns
	// nothing from the fact that it was detected.
	DummyMessage string `toml:"dummy_msg"`
	// SendOnUnsafe, when true, sends real messages even under a mismatched
	// key. When false, only the first mismatched message to a peer is
	// replaced by a dummy and subsequent ones are sent as usual.
	SendOnUnsafe bool `toml:"send_on_unsafe"`
}

// DefaultEncryptionConfig anchors the three key directories under baseDir,
// which callers pass as the directory containing the running executable.
func DefaultEncryptionConfig(baseDir string) EncryptionConfig {
	return EncryptionConfig{
		KeyLen:       4096,
		SelfKeyDir:   filepath.Join(baseDir, "self_key"),
		UnsafeKeyDir: filepath.Join(baseDir, "unsafe_key"),
		SafeKeyDir:   filepath.Join(baseDir, "safe_key"),
		DummyMessage: "hello?",
		SendOnUnsafe: false,
	}
}

// ClientConfig is everything the client role needs.
type ClientConfig struct {
	ServerHost string           `toml:"server_host"`
	UID        string           `toml:"uid"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// DefaultClientConfig matches the values written on first run.
func DefaultClientConfig(baseDir string) ClientConfig {
	return ClientConfig{
		ServerHost: "0.0.0.0:2333",
		UID:        "user",
		Encryption: DefaultEncryptionConfig(baseDir),
	}
}

// ExecutablePath returns the directory containing the running binary,
// which is where both roles look for config.toml.
func ExecutablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", errs.Wrap(errs.SourceExternal, errs.IO, err)
	}
	return filepath.Dir(exe), nil
}

// Load reads path and decodes it onto def. If path does not exist, Load
// writes def to it and returns an Initialize error asking the caller to
// restart once the file has been reviewed.
func Load[T any](path string, def T) (T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return def, writeDefault(path, def)
	}
	if err != nil {
		return def, errs.Wrap(errs.SourceExternal, errs.IO, err)
	}

	cfg := def
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return def, errs.Wrap(errs.SourceExternal, errs.DeserializeToml, err)
	}
	return cfg, nil
}

func writeDefault[T any](path string, def T) error {
	out, err := toml.Marshal(def)
	if err != nil {
		return errs.Wrap(errs.SourceExternal, errs.SerializeToml, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errs.Wrap(errs.SourceExternal, errs.IO, err)
	}
	return errs.External(errs.Initialize,
		fmt.Sprintf("wrote default configuration to %s, please review and restart", path))
}
