package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// homeDirName is the per-project state directory.
const homeDirName = ".selfheal"

// GetHome returns the selfheal home directory.
// Priority order:
//  1. SELFHEAL_HOME environment variable (if set)
//  2. .selfheal under the current working directory
//
// The directory is created if it doesn't exist.
func GetHome() (string, error) {
	home := os.Getenv("SELFHEAL_HOME")
	if home == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		home = filepath.Join(cwd, homeDirName)
	}

	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create selfheal home directory: %w", err)
	}
	return home, nil
}

// RelocateHome rewrites paths that live under the default .selfheal
// directory so they live under home instead. Explicit paths are kept.
func (c *Config) RelocateHome(home string) {
	relocate := func(p string) string {
		prefix := homeDirName + string(filepath.Separator)
		if strings.HasPrefix(p, prefix) {
			return filepath.Join(home, strings.TrimPrefix(p, prefix))
		}
		if strings.HasPrefix(p, homeDirName+"/") {
			return filepath.Join(home, strings.TrimPrefix(p, homeDirName+"/"))
		}
		return p
	}
	c.LogDir = relocate(c.LogDir)
	c.Store.DBPath = relocate(c.Store.DBPath)
}
