package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/javanstorm/vmstudio/internal/config"
	"github.com/javanstorm/vmstudio/internal/guesttools"
	"github.com/javanstorm/vmstudio/internal/lifecycle"
	"github.com/javanstorm/vmstudio/internal/prompt"
	"github.com/javanstorm/vmstudio/internal/session"
	"github.com/javanstorm/vmstudio/pkg/hypervisor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot a machine and attach its console",
	Long: `Boot a machine from the library and attach its console to this
terminal. With no --machine flag the active machine is used; an empty
library gets a "default" machine created from the configured defaults.

While the machine runs, Ctrl-C asks what to do: quit immediately, quit
once the machine has finished shutting down, or keep running.`,
	RunE: runRun,
}

var runMachine string

func init() {
	runCmd.Flags().StringVarP(&runMachine, "machine", "m", "", "machine to run (default: active machine)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Global
	log := newLogger()
	defer log.Sync()

	paths, err := config.GetPaths()
	if err != nil {
		return fmt.Errorf("determine paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	if cfg.Kernel == "" {
		return fmt.Errorf("no kernel configured (set kernel in %s or VMSTUDIO_KERNEL)", paths.ConfigDir)
	}

	// Resolve the machine to run.
	lib := session.NewLibrary(paths.MachinesDir)
	machine, err := resolveMachine(lib, cfg)
	if err != nil {
		return err
	}

	diskPath, err := lib.EnsureDisk(machine.Name, machine.DiskSizeMB)
	if err != nil {
		return fmt.Errorf("ensure disk: %w", err)
	}

	// Provision the host key pair used to reach guests over SSH.
	keys := session.NewKeyManager(paths.DataDir)
	if _, _, err := keys.EnsureKeyPair(); err != nil {
		log.Warn("failed to provision guest access keys", zap.Error(err))
	}

	// Kick off the guest tools installation in the background. The boot does
	// not wait for it: the image is attached when already installed,
	// otherwise this run goes without and a later run picks it up.
	store := guesttools.NewDiskImageStore(paths.GuestToolsImage, guesttools.ImageSource{
		URL:    cfg.GuestToolsURL,
		SHA256: cfg.GuestToolsSHA256,
	})
	installer := guesttools.NewInstaller(store, log)

	toolsPath := ""
	if installer.Status().State == guesttools.StateReady {
		toolsPath = store.Path()
	} else if cfg.GuestToolsURL != "" {
		go func() {
			if err := installer.InstallIfNeeded(context.Background()); err != nil {
				log.Warn("guest tools unavailable", zap.Error(err))
			}
		}()
	}

	// Termination coordination. quitCh closes once a deferred termination
	// completes, which is what lets Ctrl-C wait for a clean guest shutdown.
	quitCh := make(chan struct{})
	coord := lifecycle.NewCoordinator(prompt.NewStdio(), func() { close(quitCh) }, log)

	driver, err := hypervisor.NewDriver()
	if err != nil {
		return fmt.Errorf("create driver: %w", err)
	}

	hist := session.NewHistory(lib.Dir(machine.Name))
	sess, err := session.New(session.Config{
		Machine:        *machine,
		DiskPath:       diskPath,
		Kernel:         cfg.Kernel,
		Initrd:         cfg.Initrd,
		Cmdline:        cfg.Cmdline,
		GuestToolsPath: toolsPath,
		EnableNetwork:  cfg.EnableNetwork,
		MACAddress:     cfg.MACAddress,
		ConfirmOnQuit:  cfg.ConfirmOnQuit,
	}, driver, coord, hist, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Preparing %q...\n", machine.Name)
	if err := sess.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare machine: %w", err)
	}

	fmt.Printf("Starting %q...\n", machine.Name)
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("start machine: %w", err)
	}

	attachConsole(sess)

	waitCh := make(chan error, 1)
	go func() { waitCh <- sess.Wait() }()

	// Signals feed the termination coordinator rather than exiting directly,
	// so running machines get a say in whether we quit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			switch coord.EvaluateTermination() {
			case lifecycle.DecisionTerminateNow:
				if err := sess.Kill(ctx); err != nil {
					log.Warn("kill failed", zap.Error(err))
				}
				return <-waitCh
			case lifecycle.DecisionTerminateLater:
				fmt.Println("Quitting once the machine has shut down...")
			default:
				// Cancelled, keep running.
			}
		case <-quitCh:
			return <-waitCh
		case err := <-waitCh:
			if err != nil {
				return fmt.Errorf("machine exited with error: %w", err)
			}
			fmt.Printf("%q stopped.\n", machine.Name)
			return nil
		}
	}
}

// resolveMachine picks the machine to run: the --machine flag, or the active
// machine (creating a default from config when the library is empty).
func resolveMachine(lib *session.Library, cfg *config.Config) (*session.Machine, error) {
	if runMachine != "" {
		m, err := lib.Get(runMachine)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return lib.ActiveOrDefault(session.Machine{
		CPUs:       cfg.CPUs,
		MemoryMB:   cfg.MemoryMB,
		DiskSizeMB: cfg.DiskSizeMB,
	})
}

// attachConsole wires the guest console to this terminal's stdio.
func attachConsole(sess *session.Session) {
	guestIn, guestOut, err := sess.Console()
	if err != nil || guestIn == nil || guestOut == nil {
		return
	}
	go io.Copy(os.Stdout, guestOut)
	go io.Copy(guestIn, os.Stdin)
}
