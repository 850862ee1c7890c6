package cli

import (
	"fmt"

	"github.com/javanstorm/vmstudio/internal/config"
	"github.com/javanstorm/vmstudio/internal/session"
	"github.com/spf13/cobra"
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Manage the machine library",
}

var machineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List machines",
	RunE:  runMachineList,
}

var machineCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a machine",
	Args:  cobra.ExactArgs(1),
	RunE:  runMachineCreate,
}

var machineRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a machine and its data",
	Args:  cobra.ExactArgs(1),
	RunE:  runMachineRemove,
}

var machineUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active machine",
	Args:  cobra.ExactArgs(1),
	RunE:  runMachineUse,
}

var (
	createCPUs     int
	createMemoryMB int
	createDiskMB   int64
)

func init() {
	machineCreateCmd.Flags().IntVar(&createCPUs, "cpus", 0, "virtual CPUs (default: from config)")
	machineCreateCmd.Flags().IntVar(&createMemoryMB, "memory", 0, "memory in MB (default: from config)")
	machineCreateCmd.Flags().Int64Var(&createDiskMB, "disk", 0, "disk size in MB (default: from config)")

	machineCmd.AddCommand(machineListCmd)
	machineCmd.AddCommand(machineCreateCmd)
	machineCmd.AddCommand(machineRemoveCmd)
	machineCmd.AddCommand(machineUseCmd)
}

func openLibrary() (*session.Library, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("determine paths: %w", err)
	}
	return session.NewLibrary(paths.MachinesDir), nil
}

func runMachineList(cmd *cobra.Command, args []string) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}

	machines, err := lib.List()
	if err != nil {
		return err
	}
	if len(machines) == 0 {
		fmt.Println("No machines. Create one with: vmstudio machine create <name>")
		return nil
	}

	active, _ := lib.Active()
	for _, m := range machines {
		marker := " "
		if m.Name == active {
			marker = "*"
		}
		fmt.Printf("%s %-20s %d CPUs  %d MB RAM  %d MB disk\n",
			marker, m.Name, m.CPUs, m.MemoryMB, m.DiskSizeMB)
	}
	return nil
}

func runMachineCreate(cmd *cobra.Command, args []string) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}

	cfg := config.Global
	m := session.Machine{
		Name:       args[0],
		CPUs:       createCPUs,
		MemoryMB:   createMemoryMB,
		DiskSizeMB: createDiskMB,
	}
	if m.CPUs == 0 {
		m.CPUs = cfg.CPUs
	}
	if m.MemoryMB == 0 {
		m.MemoryMB = cfg.MemoryMB
	}
	if m.DiskSizeMB == 0 {
		m.DiskSizeMB = cfg.DiskSizeMB
	}

	if err := lib.Create(m); err != nil {
		return err
	}
	fmt.Printf("Created machine %q.\n", m.Name)
	return nil
}

func runMachineRemove(cmd *cobra.Command, args []string) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}
	if err := lib.Remove(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed machine %q.\n", args[0])
	return nil
}

func runMachineUse(cmd *cobra.Command, args []string) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}
	if err := lib.SetActive(args[0]); err != nil {
		return err
	}
	fmt.Printf("Active machine is now %q.\n", args[0])
	return nil
}
