package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunRecord holds per-machine run state that survives restarts.
type RunRecord struct {
	// LastBoot is when the machine was last started.
	LastBoot time.Time `json:"last_boot,omitempty"`

	// LastShutdown is when the machine was last stopped.
	LastShutdown time.Time `json:"last_shutdown,omitempty"`

	// BootCount is the number of times the machine has booted.
	BootCount int `json:"boot_count"`

	// CleanShutdown indicates if the last shutdown was clean.
	CleanShutdown bool `json:"clean_shutdown"`
}

// History manages a machine's run record on disk.
type History struct {
	path string
}

// NewHistory creates a history stored in the machine's directory.
func NewHistory(machineDir string) *History {
	return &History{
		path: filepath.Join(machineDir, "history.json"),
	}
}

// Load reads the record from disk. A missing file yields a zero record.
func (h *History) Load() (*RunRecord, error) {
	data, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return &RunRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return &rec, nil
}

// Save writes the record to disk.
func (h *History) Save(rec *RunRecord) error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	// Write atomically
	tmpPath := h.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return os.Rename(tmpPath, h.path)
}

// RecordBoot updates the record for a new boot.
func (h *History) RecordBoot() error {
	rec, err := h.Load()
	if err != nil {
		return err
	}

	rec.LastBoot = time.Now()
	rec.BootCount++
	rec.CleanShutdown = false

	return h.Save(rec)
}

// RecordShutdown updates the record for a shutdown.
func (h *History) RecordShutdown(clean bool) error {
	rec, err := h.Load()
	if err != nil {
		return err
	}

	rec.LastShutdown = time.Now()
	rec.CleanShutdown = clean

	return h.Save(rec)
}
