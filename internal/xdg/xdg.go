// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package xdg provides XDG Base Directory paths for smalllogin.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "smalllogin"

// ConfigDir returns the XDG config directory for smalllogin.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the config file read when --config is not given.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), appName+".yaml")
}

// CertsDir returns the directory generated TLS certificates are written to.
func CertsDir() string {
	return filepath.Join(ConfigDir(), "certs")
}
