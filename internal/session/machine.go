// Package session owns virtual machines: their persisted definitions, their
// running sessions, and the termination assertions a running session holds.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Machine is a persisted VM definition.
type Machine struct {
	Name       string    `json:"name"`
	CPUs       int       `json:"cpus"`
	MemoryMB   int       `json:"memory_mb"`
	DiskSizeMB int64     `json:"disk_size_mb"`
	CreatedAt  time.Time `json:"created_at"`
}

// Library manages machine definitions on disk. Each machine gets its own
// directory under the base dir holding machine.json, the disk image, and
// the run history.
type Library struct {
	baseDir    string
	activePath string
}

// NewLibrary creates a library rooted at baseDir.
func NewLibrary(baseDir string) *Library {
	return &Library{
		baseDir:    baseDir,
		activePath: filepath.Join(baseDir, "active"),
	}
}

// Dir returns a machine's directory.
func (l *Library) Dir(name string) string {
	return filepath.Join(l.baseDir, name)
}

// DiskPath returns a machine's root disk image path.
func (l *Library) DiskPath(name string) string {
	return filepath.Join(l.Dir(name), "disk.img")
}

func (l *Library) manifestPath(name string) string {
	return filepath.Join(l.Dir(name), "machine.json")
}

// Create persists a new machine definition.
func (l *Library) Create(m Machine) error {
	if m.Name == "" {
		return fmt.Errorf("machine name is required")
	}
	if _, err := os.Stat(l.manifestPath(m.Name)); err == nil {
		return fmt.Errorf("machine %q already exists", m.Name)
	}

	m.CreatedAt = time.Now()

	if err := os.MkdirAll(l.Dir(m.Name), 0755); err != nil {
		return fmt.Errorf("create machine dir: %w", err)
	}
	return l.writeManifest(m)
}

// Get loads a machine definition by name.
func (l *Library) Get(name string) (*Machine, error) {
	data, err := os.ReadFile(l.manifestPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("machine %q not found", name)
		}
		return nil, fmt.Errorf("read machine manifest: %w", err)
	}

	var m Machine
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse machine manifest: %w", err)
	}
	return &m, nil
}

// List returns all machine definitions, sorted by name.
func (l *Library) List() ([]Machine, error) {
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read library dir: %w", err)
	}

	var machines []Machine
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := l.Get(e.Name())
		if err != nil {
			// Skip directories without a manifest.
			continue
		}
		machines = append(machines, *m)
	}
	sort.Slice(machines, func(i, j int) bool { return machines[i].Name < machines[j].Name })
	return machines, nil
}

// Remove deletes a machine definition and all of its data.
func (l *Library) Remove(name string) error {
	if _, err := l.Get(name); err != nil {
		return err
	}

	active, _ := l.Active()
	if active == name {
		if err := l.ClearActive(); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(l.Dir(name)); err != nil {
		return fmt.Errorf("remove machine: %w", err)
	}
	return nil
}

// SetActive marks a machine as the one `run` uses by default.
func (l *Library) SetActive(name string) error {
	if _, err := l.Get(name); err != nil {
		return err
	}
	if err := os.MkdirAll(l.baseDir, 0755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}
	if err := os.WriteFile(l.activePath, []byte(name), 0644); err != nil {
		return fmt.Errorf("write active marker: %w", err)
	}
	return nil
}

// Active returns the active machine name, or "" if none is set.
func (l *Library) Active() (string, error) {
	data, err := os.ReadFile(l.activePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read active marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ClearActive removes the active machine marker.
func (l *Library) ClearActive() error {
	if err := os.Remove(l.activePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove active marker: %w", err)
	}
	return nil
}

// ActiveOrDefault returns the active machine, creating and activating one
// from defaults when the library is empty.
func (l *Library) ActiveOrDefault(defaults Machine) (*Machine, error) {
	machines, err := l.List()
	if err != nil {
		return nil, err
	}

	if len(machines) == 0 {
		if defaults.Name == "" {
			defaults.Name = "default"
		}
		if err := l.Create(defaults); err != nil {
			return nil, fmt.Errorf("create default machine: %w", err)
		}
		if err := l.SetActive(defaults.Name); err != nil {
			return nil, err
		}
		return l.Get(defaults.Name)
	}

	active, err := l.Active()
	if err != nil {
		return nil, err
	}
	if active == "" {
		active = machines[0].Name
		if err := l.SetActive(active); err != nil {
			return nil, err
		}
	}
	return l.Get(active)
}

// EnsureDisk creates the machine's sparse root disk image if it doesn't
// exist yet. Returns the disk path.
func (l *Library) EnsureDisk(name string, sizeMB int64) (string, error) {
	path := l.DiskPath(name)

	if _, err := os.Stat(path); err == nil {
		return path, nil // Already exists
	}

	if err := os.MkdirAll(l.Dir(name), 0755); err != nil {
		return "", fmt.Errorf("create machine dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create disk image: %w", err)
	}
	defer f.Close()

	// Truncate creates a sparse file on Linux/macOS
	if err := f.Truncate(sizeMB * 1024 * 1024); err != nil {
		return "", fmt.Errorf("size disk image: %w", err)
	}
	return path, nil
}

func (l *Library) writeManifest(m Machine) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal machine manifest: %w", err)
	}

	// Write atomically
	path := l.manifestPath(m.Name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write machine manifest: %w", err)
	}
	return os.Rename(tmpPath, path)
}
