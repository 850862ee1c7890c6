package hypervisor

import (
	"errors"
	"testing"
)

func TestVMConfigValidate(t *testing.T) {
	valid := VMConfig{
		CPUs:     2,
		MemoryMB: 512,
		Kernel:   "/path/to/vmlinuz",
	}

	tests := []struct {
		name    string
		mutate  func(c *VMConfig)
		wantErr error
	}{
		{"valid", func(c *VMConfig) {}, nil},
		{"zero cpus", func(c *VMConfig) { c.CPUs = 0 }, ErrInvalidCPUCount},
		{"negative cpus", func(c *VMConfig) { c.CPUs = -1 }, ErrInvalidCPUCount},
		{"too little memory", func(c *VMConfig) { c.MemoryMB = 64 }, ErrInsufficientMemory},
		{"missing kernel", func(c *VMConfig) { c.Kernel = "" }, ErrMissingKernel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
