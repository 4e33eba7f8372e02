// ABOUTME: Standard filesystem paths for pi-effector configuration
// ABOUTME: Resolves ~/.pi-effector/ and picks config.json or config.yaml

package config

import (
	"os"
	"path/filepath"
)

const globalDirName = ".pi-effector"

// GlobalDir returns the user-global config directory (~/.pi-effector/).
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", globalDirName)
	}
	return filepath.Join(home, globalDirName)
}

// GlobalConfigFile returns the first existing global config file, or the
// JSON path when neither exists.
func GlobalConfigFile() string {
	dir := GlobalDir()
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, "config.json")
}
