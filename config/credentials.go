package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// SecurityMethod defines the credential storage method
type SecurityMethod string

const (
	SecurityPlainText SecurityMethod = "plaintext"
	SecuritySSHKey    SecurityMethod = "ssh_key"
)

// CredentialStore holds provider API keys, either in a 0600 TOML file or
// encrypted with a key derived from an SSH private key.
type CredentialStore struct {
	method      SecurityMethod
	credentials map[string]string // providerID → API key
	sshKeyPath  string
	passphrase  string
	encManager  *EncryptionManager
}

func NewCredentialStore(method SecurityMethod, sshKeyPath string) *CredentialStore {
	return &CredentialStore{
		method:      method,
		credentials: make(map[string]string),
		sshKeyPath:  sshKeyPath,
	}
}

// SetPassphrase sets the passphrase for decrypting the SSH key
func (c *CredentialStore) SetPassphrase(passphrase string) {
	c.passphrase = passphrase
	c.encManager = nil
}

// Load loads credentials from disk based on the configured security method
func (c *CredentialStore) Load(dataDir string) error {
	var (
		creds map[string]string
		err   error
	)
	switch c.method {
	case SecurityPlainText:
		creds, err = loadPlainText(dataDir)
	case SecuritySSHKey:
		creds, err = c.loadSSHEncrypted(dataDir)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
	if err != nil {
		return err
	}
	if creds == nil {
		creds = make(map[string]string)
	}
	c.credentials = creds
	return nil
}

// Save saves credentials to disk based on the configured security method
func (c *CredentialStore) Save(dataDir string) error {
	switch c.method {
	case SecurityPlainText:
		return savePlainText(dataDir, c.credentials)
	case SecuritySSHKey:
		return c.saveSSHEncrypted(dataDir)
	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
}

func (c *CredentialStore) Get(providerID string) string {
	return c.credentials[providerID]
}

func (c *CredentialStore) Set(providerID string, apiKey string) error {
	if providerID == "" {
		return fmt.Errorf("provider id is required")
	}
	c.credentials[providerID] = apiKey
	return nil
}

func (c *CredentialStore) Delete(providerID string) {
	delete(c.credentials, providerID)
}

// Providers lists the provider ids that have a stored key
func (c *CredentialStore) Providers() []string {
	ids := make([]string, 0, len(c.credentials))
	for id := range c.credentials {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *CredentialStore) Method() SecurityMethod {
	return c.method
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

func encryptedCredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.enc")
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

func loadPlainText(dataDir string) (map[string]string, error) {
	path := credentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return cf.Credentials, nil
}

func savePlainText(dataDir string, creds map[string]string) error {
	return encodeTOMLFile(credentialsPath(dataDir), credentialsFile{Credentials: creds})
}

// encryption returns an initialized manager, rebuilding it after a passphrase change
func (c *CredentialStore) encryption() (*EncryptionManager, error) {
	if c.encManager != nil {
		return c.encManager, nil
	}
	m := NewEncryptionManager(EncryptionSSHKey, c.sshKeyPath)
	m.SetPassphrase(c.passphrase)
	if err := m.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	c.encManager = m
	return m, nil
}

func (c *CredentialStore) loadSSHEncrypted(dataDir string) (map[string]string, error) {
	path := encryptedCredentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	m, err := c.encryption()
	if err != nil {
		return nil, err
	}

	encryptedData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted credentials: %w", err)
	}

	decryptedData, err := m.Decrypt(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	var creds map[string]string
	if err := json.Unmarshal(decryptedData, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted credentials: %w", err)
	}
	return creds, nil
}

func (c *CredentialStore) saveSSHEncrypted(dataDir string) error {
	m, err := c.encryption()
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(c.credentials)
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	encryptedData, err := m.Encrypt(jsonData)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := os.WriteFile(encryptedCredentialsPath(dataDir), encryptedData, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted credentials: %w", err)
	}
	return nil
}
