package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestLoadFromDataDirCreatesDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	cfg, err := LoadFromDataDir(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.Equal(t, "ollama", cfg.DefaultProvider)
	assert.Equal(t, 50*time.Millisecond, cfg.FlushInterval())
	assert.Equal(t, 100, cfg.Streaming.MaxMessagesInMemory)
	assert.Equal(t, 20, cfg.Streaming.HistoryLimit)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	p, ok := cfg.Provider("ollama")
	require.True(t, ok)
	assert.True(t, p.Enabled)
}

func TestLoadFromDataDirReadsUserConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
default_provider = "anthropic"
default_model = "claude-haiku-4-5"
system_prompt = "be brief"

[[providers]]
id = "anthropic"
enabled = true

[streaming]
flush_interval_ms = 20

[search]
enabled = true
endpoint = "http://localhost:9999/"

[[tools]]
id = "fs"
command = "mcp-fs"
args = ["/tmp"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	cfg, err := LoadFromDataDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.Equal(t, "claude-haiku-4-5", cfg.DefaultModel)
	assert.Equal(t, "be brief", cfg.SystemPrompt)
	assert.Equal(t, 20*time.Millisecond, cfg.FlushInterval())
	assert.Equal(t, 100, cfg.Streaming.MaxMessagesInMemory, "unset values fall back to defaults")
	assert.True(t, cfg.Search.Enabled)
	assert.Equal(t, 3, cfg.Search.MaxURLs)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, []string{"/tmp"}, cfg.Tools[0].Args)

	p, ok := cfg.Provider("anthropic")
	require.True(t, ok)
	assert.Equal(t, "https://api.anthropic.com", p.BaseURL)

	_, ok = cfg.Provider("missing")
	assert.False(t, ok)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATDESK_PROVIDER", "openai")
	t.Setenv("CHATDESK_MODEL", "gpt-4o-mini")

	cfg, err := LoadFromDataDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.DefaultProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel)
}

func TestAPIKeyResolution(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DOTENVTEST_API_KEY=from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("DOTENVTEST_API_KEY") })

	cfg, err := LoadFromDataDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.APIKey("dotenvtest"))

	require.NoError(t, cfg.CredentialStore.Set("dotenvtest", "stored"))
	assert.Equal(t, "stored", cfg.APIKey("dotenvtest"))
}

func TestUpdateProviderField(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFromDataDir(dir)
	require.NoError(t, err)

	require.NoError(t, UpdateProviderField(cfg, "openai", "enabled", "true"))
	require.NoError(t, UpdateProviderField(cfg, "openai", "apikey", "sk-test"))
	assert.Error(t, UpdateProviderField(cfg, "openai", "color", "blue"))
	assert.Error(t, UpdateProviderField(cfg, "ollama", "apikey", "x"))

	reloaded, err := LoadFromDataDir(dir)
	require.NoError(t, err)
	p, ok := reloaded.Provider("openai")
	require.True(t, ok)
	assert.True(t, p.Enabled)
	assert.Equal(t, "sk-test", reloaded.CredentialStore.Get("openai"))
}

func TestPlainTextCredentials(t *testing.T) {
	dir := t.TempDir()
	store := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, store.Set("anthropic", "sk-ant"))
	require.NoError(t, store.Set("openai", "sk-oai"))
	require.NoError(t, store.Save(dir))

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := NewCredentialStore(SecurityPlainText, "")
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, []string{"anthropic", "openai"}, loaded.Providers())
	assert.Equal(t, "sk-ant", loaded.Get("anthropic"))

	loaded.Delete("openai")
	assert.Empty(t, loaded.Get("openai"))
	assert.Error(t, loaded.Set("", "x"))
}

func writeEd25519Key(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestSSHKeyCredentials(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeEd25519Key(t, "")

	store := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, store.Set("openrouter", "sk-or"))
	require.NoError(t, store.Save(dir))

	raw, err := os.ReadFile(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-or")

	loaded := NewCredentialStore(SecuritySSHKey, keyPath)
	require.NoError(t, loaded.Load(dir))
	assert.Equal(t, "sk-or", loaded.Get("openrouter"))

	other := NewCredentialStore(SecuritySSHKey, writeEd25519Key(t, ""))
	assert.Error(t, other.Load(dir))
}

func TestEncryptedSSHKeyNeedsPassphrase(t *testing.T) {
	keyPath := writeEd25519Key(t, "hunter2")

	encrypted, err := IsSSHKeyEncrypted(keyPath)
	require.NoError(t, err)
	assert.True(t, encrypted)

	m := NewEncryptionManager(EncryptionSSHKey, keyPath)
	assert.ErrorIs(t, m.Initialize(), ErrPassphraseRequired)

	m.SetPassphrase("hunter2")
	require.NoError(t, m.Initialize())

	ciphertext, err := m.Encrypt([]byte("secret"))
	require.NoError(t, err)
	plaintext, err := m.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plaintext))

	_, err = m.Decrypt([]byte("short"))
	assert.Error(t, err)
}

func TestKeybindings(t *testing.T) {
	dir := t.TempDir()

	kb, err := LoadKeybindings(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "keybindings.toml"))
	assert.Equal(t, "enter", kb.GetActionKey("send"))
	assert.Equal(t, "Ctrl+S", kb.DisplayActionKey("stop"))
	assert.NoError(t, kb.Validate())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "keybindings.toml"), []byte("[actions]\nstop = \"Esc\"\n"), 0600))
	kb, err = LoadKeybindings(dir)
	require.NoError(t, err)
	assert.Equal(t, "esc", kb.GetActionKey("stop"))

	tests := []struct {
		name    string
		actions map[string]string
		wantErr bool
	}{
		{"defaults", map[string]string{}, false},
		{"unknown action", map[string]string{"dance": "d"}, true},
		{"duplicate key", map[string]string{"stop": "enter"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&KeyBindingsConfig{Actions: tt.actions}).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("CHATDESK_TEST_DIR", "/srv")

	assert.Equal(t, "/home/tester/notes", ExpandPath("~/notes"))
	assert.Equal(t, "/srv/x", ExpandPath("$CHATDESK_TEST_DIR/x"))
	assert.Equal(t, "", ExpandPath(""))
}
