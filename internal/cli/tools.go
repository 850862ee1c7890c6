package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/javanstorm/vmstudio/internal/config"
	"github.com/javanstorm/vmstudio/internal/guesttools"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Manage the guest tools image",
}

var toolsInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and install the guest tools image",
	Long: `Download the guest tools disk image, verify it, and install it.
The image is shared by all machines and attached read-only at boot.
Installation is idempotent: an image already in place is left alone.`,
	RunE: runToolsInstall,
}

var toolsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show guest tools installation state",
	RunE:  runToolsStatus,
}

func init() {
	toolsCmd.AddCommand(toolsInstallCmd)
	toolsCmd.AddCommand(toolsStatusCmd)
}

func newToolsInstaller() (*guesttools.Installer, *guesttools.DiskImageStore, error) {
	cfg := config.Global

	paths, err := config.GetPaths()
	if err != nil {
		return nil, nil, fmt.Errorf("determine paths: %w", err)
	}

	store := guesttools.NewDiskImageStore(paths.GuestToolsImage, guesttools.ImageSource{
		URL:    cfg.GuestToolsURL,
		SHA256: cfg.GuestToolsSHA256,
	})
	return guesttools.NewInstaller(store, newLogger()), store, nil
}

func runToolsInstall(cmd *cobra.Command, args []string) error {
	installer, store, err := newToolsInstaller()
	if err != nil {
		return err
	}

	// Report each state transition while the install runs.
	updates, cancel := installer.Subscribe()
	defer cancel()
	go func() {
		for st := range updates {
			switch st.State {
			case guesttools.StateInstalling:
				fmt.Println("Downloading guest tools...")
			case guesttools.StateReady:
				fmt.Printf("Guest tools installed at %s\n", store.Path())
			case guesttools.StateFailed:
				fmt.Printf("Guest tools installation failed: %v\n", st.Err)
			}
		}
	}()

	// Ctrl-C abandons the wait; the download itself runs to completion.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := installer.InstallIfNeeded(ctx); err != nil {
		return fmt.Errorf("install guest tools: %w", err)
	}
	return nil
}

func runToolsStatus(cmd *cobra.Command, args []string) error {
	installer, store, err := newToolsInstaller()
	if err != nil {
		return err
	}

	st := installer.Status()
	fmt.Printf("Guest tools: %s\n", st.State)
	if st.State == guesttools.StateReady {
		fmt.Printf("  Path: %s\n", store.Path())
	}
	if st.Err != nil {
		fmt.Printf("  Error: %v\n", st.Err)
	}
	if config.Global.GuestToolsURL == "" {
		fmt.Println("  No source configured (set guest_tools_url)")
	}
	return nil
}
