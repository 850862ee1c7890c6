package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLibraryCreateAndGet(t *testing.T) {
	lib := NewLibrary(t.TempDir())

	m := Machine{Name: "dev", CPUs: 2, MemoryMB: 1024, DiskSizeMB: 2048}
	if err := lib.Create(m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := lib.Get("dev")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CPUs != 2 || got.MemoryMB != 1024 || got.DiskSizeMB != 2048 {
		t.Errorf("Get() = %+v, want fields from %+v", got, m)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Get().CreatedAt is zero, want creation time set")
	}
}

func TestLibraryCreateDuplicate(t *testing.T) {
	lib := NewLibrary(t.TempDir())

	if err := lib.Create(Machine{Name: "dev"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := lib.Create(Machine{Name: "dev"}); err == nil {
		t.Error("Create() duplicate = nil, want error")
	}
}

func TestLibraryCreateEmptyName(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	if err := lib.Create(Machine{}); err == nil {
		t.Error("Create() with empty name = nil, want error")
	}
}

func TestLibraryGetMissing(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	if _, err := lib.Get("nope"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Get() missing machine error = %v, want not-found", err)
	}
}

func TestLibraryListSorted(t *testing.T) {
	lib := NewLibrary(t.TempDir())

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := lib.Create(Machine{Name: name}); err != nil {
			t.Fatalf("Create(%q) error = %v", name, err)
		}
	}

	machines, err := lib.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"alpha", "mid", "zeta"}
	if len(machines) != len(want) {
		t.Fatalf("List() returned %d machines, want %d", len(machines), len(want))
	}
	for i, name := range want {
		if machines[i].Name != name {
			t.Errorf("List()[%d].Name = %q, want %q", i, machines[i].Name, name)
		}
	}
}

func TestLibraryListEmptyBaseDir(t *testing.T) {
	lib := NewLibrary(filepath.Join(t.TempDir(), "missing"))
	machines, err := lib.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(machines) != 0 {
		t.Errorf("List() = %v, want empty", machines)
	}
}

func TestLibraryRemoveClearsActive(t *testing.T) {
	lib := NewLibrary(t.TempDir())

	if err := lib.Create(Machine{Name: "dev"}); err != nil {
		t.Fatal(err)
	}
	if err := lib.SetActive("dev"); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	if err := lib.Remove("dev"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	active, err := lib.Active()
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if active != "" {
		t.Errorf("Active() = %q after removing active machine, want empty", active)
	}
	if _, err := lib.Get("dev"); err == nil {
		t.Error("Get() after Remove() = nil error, want not-found")
	}
}

func TestLibraryActiveOrDefaultCreatesDefault(t *testing.T) {
	lib := NewLibrary(t.TempDir())

	m, err := lib.ActiveOrDefault(Machine{CPUs: 4, MemoryMB: 2048, DiskSizeMB: 4096})
	if err != nil {
		t.Fatalf("ActiveOrDefault() error = %v", err)
	}
	if m.Name != "default" {
		t.Errorf("ActiveOrDefault().Name = %q, want %q", m.Name, "default")
	}

	active, err := lib.Active()
	if err != nil {
		t.Fatal(err)
	}
	if active != "default" {
		t.Errorf("Active() = %q, want %q", active, "default")
	}
}

func TestLibraryActiveOrDefaultPrefersActive(t *testing.T) {
	lib := NewLibrary(t.TempDir())

	for _, name := range []string{"one", "two"} {
		if err := lib.Create(Machine{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	if err := lib.SetActive("two"); err != nil {
		t.Fatal(err)
	}

	m, err := lib.ActiveOrDefault(Machine{})
	if err != nil {
		t.Fatalf("ActiveOrDefault() error = %v", err)
	}
	if m.Name != "two" {
		t.Errorf("ActiveOrDefault().Name = %q, want %q", m.Name, "two")
	}
}

func TestLibraryEnsureDisk(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	if err := lib.Create(Machine{Name: "dev"}); err != nil {
		t.Fatal(err)
	}

	path, err := lib.EnsureDisk("dev", 16)
	if err != nil {
		t.Fatalf("EnsureDisk() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat disk: %v", err)
	}
	if got, want := info.Size(), int64(16*1024*1024); got != want {
		t.Errorf("disk size = %d, want %d", got, want)
	}

	// Second call leaves the existing disk alone.
	again, err := lib.EnsureDisk("dev", 32)
	if err != nil {
		t.Fatalf("second EnsureDisk() error = %v", err)
	}
	if again != path {
		t.Errorf("second EnsureDisk() = %q, want %q", again, path)
	}
	info, err = os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := info.Size(), int64(16*1024*1024); got != want {
		t.Errorf("disk resized to %d on repeat call, want %d", got, want)
	}
}

func TestHistoryRecordBootAndShutdown(t *testing.T) {
	h := NewHistory(t.TempDir())

	if err := h.RecordBoot(); err != nil {
		t.Fatalf("RecordBoot() error = %v", err)
	}
	if err := h.RecordBoot(); err != nil {
		t.Fatalf("RecordBoot() error = %v", err)
	}

	rec, err := h.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.BootCount != 2 {
		t.Errorf("BootCount = %d, want 2", rec.BootCount)
	}
	if rec.CleanShutdown {
		t.Error("CleanShutdown = true after boot, want false")
	}

	if err := h.RecordShutdown(true); err != nil {
		t.Fatalf("RecordShutdown() error = %v", err)
	}
	rec, err = h.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !rec.CleanShutdown {
		t.Error("CleanShutdown = false after clean shutdown, want true")
	}
	if rec.LastShutdown.IsZero() {
		t.Error("LastShutdown is zero after shutdown")
	}
}

func TestHistoryLoadMissing(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "machine"))
	rec, err := h.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.BootCount != 0 {
		t.Errorf("BootCount = %d for fresh history, want 0", rec.BootCount)
	}
}
