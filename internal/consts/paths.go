package consts

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	OrxDirName     = ".orx"
	ConfigFileName = "config.yaml"

	// ConfigPathEnv overrides the default config location when set.
	ConfigPathEnv = "ORX_CONFIG"
)

func OrxHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, OrxDirName)
}

func DefaultConfigPath() string {
	if path := strings.TrimSpace(os.Getenv(ConfigPathEnv)); path != "" {
		return path
	}
	return filepath.Join(OrxHomeDir(), ConfigFileName)
}
