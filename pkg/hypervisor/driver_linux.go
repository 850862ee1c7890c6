//go:build linux

package hypervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	hypeos "github.com/c35s/hype/os/linux"
	"github.com/c35s/hype/virtio"
	"github.com/c35s/hype/vmm"
)

// kvmDriver implements Driver using Linux KVM via hype.
type kvmDriver struct {
	mu         sync.Mutex
	cfg        *VMConfig
	vm         *vmm.VM
	state      driverState
	cancel     context.CancelFunc
	diskFile   *os.File
	toolsFile  *os.File
	consoleIn  io.Writer // Write to this to send to the guest
	consoleOut io.Reader // Read from this to get guest output
	// Raw pipe handles for closing
	inputWriter  *os.File
	outputReader *os.File
}

type driverState int

const (
	stateNew driverState = iota
	stateCreated
	stateRunning
	stateStopped
)

// NewDriver creates a new KVM-based driver for Linux.
func NewDriver() (Driver, error) {
	if _, err := os.Stat("/dev/kvm"); err != nil {
		return nil, fmt.Errorf("kvmDriver: /dev/kvm not accessible: %w", err)
	}
	return &kvmDriver{
		state: stateNew,
	}, nil
}

func (d *kvmDriver) Info() Info {
	return Info{
		Name:    "kvm",
		Version: "1.0.0",
		Arch:    runtime.GOARCH,
	}
}

func (d *kvmDriver) Validate(ctx context.Context, cfg *VMConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(cfg.Kernel); err != nil {
		return fmt.Errorf("kvmDriver: kernel not found: %w", err)
	}
	return nil
}

func (d *kvmDriver) Create(ctx context.Context, cfg *VMConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateNew {
		return fmt.Errorf("kvmDriver: invalid state for Create")
	}

	kernel, err := os.ReadFile(cfg.Kernel)
	if err != nil {
		return fmt.Errorf("kvmDriver: read kernel: %w", err)
	}

	var initrd []byte
	if cfg.Initrd != "" {
		initrd, err = os.ReadFile(cfg.Initrd)
		if err != nil {
			return fmt.Errorf("kvmDriver: read initrd: %w", err)
		}
	}

	// Console I/O runs over pipes: we write to inputWriter, the guest reads
	// inputReader; the guest writes outputWriter, we read outputReader.
	inputReader, inputWriter, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("kvmDriver: create input pipe: %w", err)
	}
	outputReader, outputWriter, err := os.Pipe()
	if err != nil {
		inputReader.Close()
		inputWriter.Close()
		return fmt.Errorf("kvmDriver: create output pipe: %w", err)
	}

	d.consoleIn = inputWriter
	d.consoleOut = outputReader
	d.inputWriter = inputWriter
	d.outputReader = outputReader

	hypeCfg := vmm.Config{
		MemSize: int(cfg.MemoryMB) * 1024 * 1024,
		Devices: []virtio.DeviceConfig{
			&virtio.ConsoleDevice{
				In:  inputReader,
				Out: outputWriter,
			},
		},
		Loader: &hypeos.Loader{
			Kernel:  kernel,
			Initrd:  initrd,
			Cmdline: cfg.Cmdline,
		},
	}

	if cfg.DiskPath != "" {
		diskFile, err := os.OpenFile(cfg.DiskPath, os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("kvmDriver: open disk: %w", err)
		}
		hypeCfg.Devices = append(hypeCfg.Devices, &virtio.BlockDevice{
			Storage: &virtio.FileStorage{File: diskFile},
		})
		d.diskFile = diskFile
	}

	// The guest tools image is shared by every machine; open read-only.
	if cfg.GuestToolsPath != "" {
		toolsFile, err := os.OpenFile(cfg.GuestToolsPath, os.O_RDONLY, 0)
		if err != nil {
			d.closeDiskFilesLocked()
			return fmt.Errorf("kvmDriver: open guest tools image: %w", err)
		}
		hypeCfg.Devices = append(hypeCfg.Devices, &virtio.BlockDevice{
			Storage: &virtio.FileStorage{File: toolsFile},
		})
		d.toolsFile = toolsFile
	}

	vm, err := vmm.New(hypeCfg)
	if err != nil {
		d.closeDiskFilesLocked()
		return fmt.Errorf("kvmDriver: create VM: %w", err)
	}

	d.cfg = cfg
	d.vm = vm
	d.state = stateCreated

	return nil
}

func (d *kvmDriver) Start(ctx context.Context) (chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateCreated && d.state != stateStopped {
		return nil, ErrNotCreated
	}

	errCh := make(chan error, 1)
	startedCh := make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go func() {
		// VCPU ioctls must stay on one OS thread.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		close(startedCh)

		err := d.vm.Run(runCtx)
		d.mu.Lock()
		d.state = stateStopped
		d.mu.Unlock()
		errCh <- err
	}()

	// Wait for the goroutine to actually start before setting state.
	<-startedCh
	d.state = stateRunning

	return errCh, nil
}

func (d *kvmDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateRunning {
		return ErrNotRunning
	}

	if d.cancel != nil {
		d.cancel()
	}
	d.state = stateStopped
	return nil
}

func (d *kvmDriver) Kill(ctx context.Context) error {
	// For KVM, Kill is the same as Stop (context cancellation).
	err := d.Stop(ctx)

	d.mu.Lock()
	d.closeDiskFilesLocked()
	d.mu.Unlock()

	return err
}

func (d *kvmDriver) Console() (io.Writer, io.Reader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.consoleIn == nil || d.consoleOut == nil {
		return nil, nil, fmt.Errorf("kvmDriver: console not initialized")
	}

	return d.consoleIn, d.consoleOut, nil
}

func (d *kvmDriver) CloseConsole() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error

	if d.inputWriter != nil {
		if err := d.inputWriter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input pipe: %w", err))
		}
		d.inputWriter = nil
		d.consoleIn = nil
	}

	if d.outputReader != nil {
		if err := d.outputReader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pipe: %w", err))
		}
		d.outputReader = nil
		d.consoleOut = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("kvmDriver: close console: %v", errs)
	}
	return nil
}

// closeDiskFilesLocked closes any open disk image handles. Caller holds d.mu.
func (d *kvmDriver) closeDiskFilesLocked() {
	if d.diskFile != nil {
		d.diskFile.Close()
		d.diskFile = nil
	}
	if d.toolsFile != nil {
		d.toolsFile.Close()
		d.toolsFile = nil
	}
}
