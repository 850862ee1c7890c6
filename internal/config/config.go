package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all VMStudio configuration.
type Config struct {
	// CPUs is the number of virtual CPUs for new machines.
	CPUs int `mapstructure:"cpus"`

	// MemoryMB is the amount of RAM in megabytes for new machines.
	MemoryMB int `mapstructure:"memory_mb"`

	// DiskSizeMB is the root disk image size in megabytes for new machines.
	DiskSizeMB int64 `mapstructure:"disk_size_mb"`

	// Kernel is the path to the guest kernel image.
	Kernel string `mapstructure:"kernel"`

	// Initrd is the path to the guest initial ramdisk (optional).
	Initrd string `mapstructure:"initrd"`

	// Cmdline is the guest kernel command line.
	Cmdline string `mapstructure:"cmdline"`

	// EnableNetwork enables guest networking (NAT mode on macOS).
	EnableNetwork bool `mapstructure:"enable_network"`

	// MACAddress is an optional custom MAC address (empty = auto-generate).
	MACAddress string `mapstructure:"mac_address"`

	// ConfirmOnQuit asks before quitting while a machine is running.
	// When false, quitting stops the guest gracefully and then exits.
	ConfirmOnQuit bool `mapstructure:"confirm_on_quit"`

	// GuestToolsURL is where the guest tools disk image is downloaded from.
	GuestToolsURL string `mapstructure:"guest_tools_url"`

	// GuestToolsSHA256 is the expected image digest (empty = unverified).
	GuestToolsSHA256 string `mapstructure:"guest_tools_sha256"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Debug switches to development logging output.
	Debug bool `mapstructure:"debug"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CPUs:          runtime.NumCPU(),
		MemoryMB:      2048,
		DiskSizeMB:    10240, // 10GB
		Cmdline:       "console=hvc0 root=/dev/vda",
		EnableNetwork: true,
		ConfirmOnQuit: true,
		LogLevel:      "info",
	}
}

// Global holds the loaded configuration.
var Global *Config

// Load reads configuration from file, environment, and defaults.
func Load() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to determine paths: %w", err)
	}

	// Set defaults
	defaults := DefaultConfig()
	viper.SetDefault("cpus", defaults.CPUs)
	viper.SetDefault("memory_mb", defaults.MemoryMB)
	viper.SetDefault("disk_size_mb", defaults.DiskSizeMB)
	viper.SetDefault("kernel", defaults.Kernel)
	viper.SetDefault("initrd", defaults.Initrd)
	viper.SetDefault("cmdline", defaults.Cmdline)
	viper.SetDefault("enable_network", defaults.EnableNetwork)
	viper.SetDefault("mac_address", defaults.MACAddress)
	viper.SetDefault("confirm_on_quit", defaults.ConfirmOnQuit)
	viper.SetDefault("guest_tools_url", defaults.GuestToolsURL)
	viper.SetDefault("guest_tools_sha256", defaults.GuestToolsSHA256)
	viper.SetDefault("log_level", defaults.LogLevel)
	viper.SetDefault("debug", defaults.Debug)

	// Config file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(paths.ConfigDir)
	viper.AddConfigPath(paths.DataDir)

	// Environment variable support: VMSTUDIO_CPUS, VMSTUDIO_LOG_LEVEL, etc.
	viper.SetEnvPrefix("VMSTUDIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (optional - not an error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK - we use defaults
	}

	// Unmarshal into struct
	Global = &Config{}
	if err := viper.Unmarshal(Global); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

// ConfigFileUsed returns the path of the config file being used, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
