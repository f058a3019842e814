// Package setup detects and writes a first-run walletkit configuration.
package setup

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/yolodolo42/walletkit/internal/wallet"
)

// ConfigFileName is the config file written under the data directory.
const ConfigFileName = "config.yaml"

// Status is what already exists on disk.
type Status struct {
	ConfigPath      string
	HasConfig       bool
	HasKeystore     bool
	KeystoreAddress string
}

// DetectStatus checks for a config file and keystore accounts under dataDir.
func DetectStatus(dataDir string) *Status {
	status := &Status{ConfigPath: filepath.Join(dataDir, ConfigFileName)}

	if info, err := os.Stat(status.ConfigPath); err == nil && !info.IsDir() {
		status.HasConfig = true
	}

	keystoreDir := filepath.Join(dataDir, "keystore")
	if entries, err := os.ReadDir(keystoreDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
				status.HasKeystore = true
				break
			}
		}
	}

	if status.HasKeystore {
		if km, err := wallet.NewKeystoreManager(dataDir); err == nil {
			if accounts := km.ListAccounts(); len(accounts) > 0 {
				status.KeystoreAddress = accounts[0].Address.Hex()
			}
		}
	}
	return status
}

// NeedsSetup reports whether no config file has been written yet.
func NeedsSetup(dataDir string) bool {
	return !DetectStatus(dataDir).HasConfig
}

// DefaultDataDir returns ~/.walletkit.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".walletkit"), nil
}
