package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	BaseDirName      = ".config/amman"
	ConfigFileName   = "config.hcl"
	HistoryDBName    = "history.db"
	ValidatorLogName = "validator.log"
)

// DefaultConfigPath returns ~/.config/amman
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, BaseDirName)
}

// GetConfigFilePath returns the HCL file inside the config path
func GetConfigFilePath() string {
	return filepath.Join(Config.ConfigPath, ConfigFileName)
}

// GetHistoryDBPath returns the journal location, defaulting to the config path
func GetHistoryDBPath() string {
	if Config.HistoryDB != "" {
		return Config.HistoryDB
	}
	return filepath.Join(Config.ConfigPath, HistoryDBName)
}

// GetValidatorLogPath returns where a detached validator writes its output
func GetValidatorLogPath() string {
	return filepath.Join(Config.ConfigPath, ValidatorLogName)
}

// InitializeConfig loads <configPath>/config.hcl into the global Config.
// A missing file yields the defaults. A verbose level given on the command
// line wins over the file.
func InitializeConfig(configPath string, verbose int) error {
	configPath = expandHome(configPath)
	filename := filepath.Join(configPath, ConfigFileName)

	cfg := GetDefaultConfig()
	if ConfigExists(filename) {
		loaded, err := LoadConfig(filename)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	cfg.ConfigPath = configPath
	cfg.HistoryDB = expandHome(cfg.HistoryDB)
	cfg.TempDir = expandHome(cfg.TempDir)
	if verbose > 0 {
		cfg.Verbose = verbose
	}

	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("failed to create config path: %w", err)
	}

	Config = cfg
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}
