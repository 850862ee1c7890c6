package cli

import (
	"testing"

	"github.com/javanstorm/vmstudio/internal/config"
	"github.com/javanstorm/vmstudio/internal/session"
)

func TestResolveMachineCreatesDefault(t *testing.T) {
	origFlag := runMachine
	defer func() { runMachine = origFlag }()
	runMachine = ""

	lib := session.NewLibrary(t.TempDir())
	cfg := &config.Config{CPUs: 2, MemoryMB: 1024, DiskSizeMB: 2048}

	m, err := resolveMachine(lib, cfg)
	if err != nil {
		t.Fatalf("resolveMachine: %v", err)
	}
	if m.Name != "default" {
		t.Errorf("machine name = %q, want %q", m.Name, "default")
	}
	if m.CPUs != 2 || m.MemoryMB != 1024 || m.DiskSizeMB != 2048 {
		t.Errorf("machine = %+v, want config defaults applied", m)
	}
}

func TestResolveMachineFlagOverridesActive(t *testing.T) {
	origFlag := runMachine
	defer func() { runMachine = origFlag }()

	lib := session.NewLibrary(t.TempDir())
	for _, name := range []string{"alpha", "beta"} {
		if err := lib.Create(session.Machine{Name: name, CPUs: 1, MemoryMB: 512}); err != nil {
			t.Fatalf("Create(%q): %v", name, err)
		}
	}
	if err := lib.SetActive("alpha"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	runMachine = "beta"
	m, err := resolveMachine(lib, &config.Config{})
	if err != nil {
		t.Fatalf("resolveMachine: %v", err)
	}
	if m.Name != "beta" {
		t.Errorf("machine name = %q, want %q", m.Name, "beta")
	}
}

func TestResolveMachineMissingFlag(t *testing.T) {
	origFlag := runMachine
	defer func() { runMachine = origFlag }()
	runMachine = "nope"

	lib := session.NewLibrary(t.TempDir())
	if _, err := resolveMachine(lib, &config.Config{}); err == nil {
		t.Error("resolveMachine with unknown machine = nil error, want not-found")
	}
}
