// Package config provides configuration management for VMStudio.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds platform-specific directory paths for VMStudio.
type Paths struct {
	// ConfigDir is the directory for configuration files.
	// macOS: ~/Library/Application Support/VMStudio
	// Linux: ~/.config/vmstudio (or XDG_CONFIG_HOME)
	ConfigDir string

	// DataDir is the directory for machines, disk images, and keys.
	// All platforms: ~/.vmstudio
	DataDir string

	// MachinesDir is where machine definitions and their disks live.
	MachinesDir string

	// GuestToolsImage is where the shared guest tools image is installed.
	GuestToolsImage string
}

// GetPaths returns platform-aware paths for VMStudio.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{}

	// Data directory is always ~/.vmstudio
	p.DataDir = filepath.Join(home, ".vmstudio")
	p.MachinesDir = filepath.Join(p.DataDir, "machines")
	p.GuestToolsImage = filepath.Join(p.DataDir, "tools", "guest-tools.img")

	// Config directory is platform-specific
	switch runtime.GOOS {
	case "darwin":
		p.ConfigDir = filepath.Join(home, "Library", "Application Support", "VMStudio")
	default: // Linux and others
		// Respect XDG_CONFIG_HOME if set
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			p.ConfigDir = filepath.Join(xdgConfig, "vmstudio")
		} else {
			p.ConfigDir = filepath.Join(home, ".config", "vmstudio")
		}
	}

	return p, nil
}

// EnsureDirectories creates the config and data directories if they don't
// exist.
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(p.MachinesDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Dir(p.GuestToolsImage), 0755)
}
