package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CPUs < 1 {
		t.Errorf("CPUs = %d, want at least 1", cfg.CPUs)
	}
	if cfg.MemoryMB != 2048 {
		t.Errorf("MemoryMB = %d, want 2048", cfg.MemoryMB)
	}
	if cfg.DiskSizeMB != 10240 {
		t.Errorf("DiskSizeMB = %d, want 10240", cfg.DiskSizeMB)
	}
	if !cfg.ConfirmOnQuit {
		t.Error("ConfirmOnQuit = false, want true by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("VMSTUDIO_MEMORY_MB", "4096")
	t.Setenv("VMSTUDIO_LOG_LEVEL", "debug")
	t.Setenv("VMSTUDIO_CONFIRM_ON_QUIT", "false")

	if err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if Global.MemoryMB != 4096 {
		t.Errorf("MemoryMB = %d, want 4096 from environment", Global.MemoryMB)
	}
	if Global.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q from environment", Global.LogLevel, "debug")
	}
	if Global.ConfirmOnQuit {
		t.Error("ConfirmOnQuit = true, want false from environment")
	}
}

func TestGetPaths(t *testing.T) {
	p, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths() error = %v", err)
	}

	if p.DataDir == "" || p.ConfigDir == "" {
		t.Fatalf("GetPaths() = %+v, want non-empty directories", p)
	}
	if p.MachinesDir == "" || p.GuestToolsImage == "" {
		t.Errorf("GetPaths() = %+v, want machines dir and tools image set", p)
	}
}
