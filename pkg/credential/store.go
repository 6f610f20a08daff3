package credential

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Store persists the credential bundle between runs.
type Store interface {
	Save(cred *Credential) error
	Load() (*Credential, error)
	Delete() error
	Exists() bool
}

// NewDefaultStore returns the best available store: the system keychain
// when present, otherwise an encrypted file under the config directory.
func NewDefaultStore() (Store, error) {
	if ks, err := NewKeyringStore(); err == nil {
		return ks, nil
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return NewEncryptedFileStore(filepath.Join(configDir, "credential.enc"))
}

// getConfigDir returns the configuration directory path.
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "bilicrawl")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "bilicrawl")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "bilicrawl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "bilicrawl")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}
