package cli

import (
	"fmt"
	"os"

	"github.com/javanstorm/vmstudio/internal/config"
	"github.com/javanstorm/vmstudio/internal/guesttools"
	"github.com/javanstorm/vmstudio/internal/session"
	"github.com/javanstorm/vmstudio/pkg/hypervisor"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show machine status and information",
	Long:  `Display information about a machine including hypervisor, disk, boot history, and guest tools.`,
	RunE:  runStatus,
}

var statusMachine string

func init() {
	statusCmd.Flags().StringVarP(&statusMachine, "machine", "m", "", "machine to show status for (default: active machine)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Global

	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("determine paths: %w", err)
	}

	lib := session.NewLibrary(paths.MachinesDir)
	var machine *session.Machine
	if statusMachine != "" {
		machine, err = lib.Get(statusMachine)
	} else {
		machine, err = lib.ActiveOrDefault(session.Machine{
			CPUs:       cfg.CPUs,
			MemoryMB:   cfg.MemoryMB,
			DiskSizeMB: cfg.DiskSizeMB,
		})
	}
	if err != nil {
		return err
	}

	active, _ := lib.Active()
	activeMarker := ""
	if machine.Name == active {
		activeMarker = " (active)"
	}
	fmt.Printf("Machine: %s%s\n", machine.Name, activeMarker)
	fmt.Printf("  CPUs:   %d\n", machine.CPUs)
	fmt.Printf("  Memory: %d MB\n", machine.MemoryMB)
	fmt.Println()

	// Hypervisor
	driver, err := hypervisor.NewDriver()
	if err != nil {
		fmt.Printf("Hypervisor: unavailable (%v)\n", err)
	} else {
		info := driver.Info()
		fmt.Printf("Hypervisor: %s v%s (%s)\n", info.Name, info.Version, info.Arch)
	}
	fmt.Println()

	// Disk
	diskPath := lib.DiskPath(machine.Name)
	if info, err := os.Stat(diskPath); err == nil {
		fmt.Printf("Disk:\n")
		fmt.Printf("  Path: %s\n", diskPath)
		fmt.Printf("  Size: %.2f MB (allocated)\n", float64(info.Size())/(1024*1024))
	} else {
		fmt.Printf("Disk: not created\n")
	}
	fmt.Println()

	// Guest tools
	store := guesttools.NewDiskImageStore(paths.GuestToolsImage, guesttools.ImageSource{
		URL:    cfg.GuestToolsURL,
		SHA256: cfg.GuestToolsSHA256,
	})
	if ok, _ := store.Exists(); ok {
		fmt.Printf("Guest tools: installed (%s)\n", store.Path())
	} else if cfg.GuestToolsURL == "" {
		fmt.Printf("Guest tools: no source configured\n")
	} else {
		fmt.Printf("Guest tools: not installed (run: vmstudio tools install)\n")
	}
	fmt.Println()

	// Boot history
	hist := session.NewHistory(lib.Dir(machine.Name))
	rec, err := hist.Load()
	if err != nil {
		fmt.Printf("History: error loading (%v)\n", err)
	} else if rec.BootCount == 0 {
		fmt.Printf("History: never booted\n")
	} else {
		fmt.Printf("History:\n")
		fmt.Printf("  Boot count: %d\n", rec.BootCount)
		if !rec.LastBoot.IsZero() {
			fmt.Printf("  Last boot: %s\n", rec.LastBoot.Format("2006-01-02 15:04:05"))
		}
		if !rec.LastShutdown.IsZero() {
			fmt.Printf("  Last shutdown: %s\n", rec.LastShutdown.Format("2006-01-02 15:04:05"))
			if rec.CleanShutdown {
				fmt.Printf("  Shutdown type: clean\n")
			} else {
				fmt.Printf("  Shutdown type: unclean\n")
			}
		}
	}

	return nil
}
