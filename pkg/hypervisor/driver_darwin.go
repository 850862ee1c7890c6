//go:build darwin

package hypervisor

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"sync"

	"github.com/Code-Hex/vz/v3"
)

// vzDriver implements Driver using macOS Virtualization.framework.
type vzDriver struct {
	mu         sync.Mutex
	cfg        *VMConfig
	vm         *vz.VirtualMachine
	state      driverState
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

// NewDriver creates a new vz-based driver for macOS.
func NewDriver() (Driver, error) {
	return &vzDriver{
		state: stateNew,
	}, nil
}

func (d *vzDriver) Info() Info {
	return Info{
		Name:    "vz",
		Version: "1.0.0",
		Arch:    runtime.GOARCH,
	}
}

func (d *vzDriver) Validate(ctx context.Context, cfg *VMConfig) error {
	return cfg.Validate()
}

func (d *vzDriver) Create(ctx context.Context, cfg *VMConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateNew {
		return fmt.Errorf("vzDriver: invalid state for Create")
	}

	bootLoader, err := vz.NewLinuxBootLoader(cfg.Kernel,
		vz.WithCommandLine(cfg.Cmdline),
		vz.WithInitrd(cfg.Initrd),
	)
	if err != nil {
		return fmt.Errorf("vzDriver: create boot loader: %w", err)
	}

	vmCfg, err := vz.NewVirtualMachineConfiguration(
		bootLoader,
		uint(cfg.CPUs),
		uint64(cfg.MemoryMB)*1024*1024,
	)
	if err != nil {
		return fmt.Errorf("vzDriver: create VM config: %w", err)
	}

	platform, err := vz.NewGenericPlatformConfiguration()
	if err != nil {
		return fmt.Errorf("vzDriver: create platform config: %w", err)
	}
	vmCfg.SetPlatformVirtualMachineConfiguration(platform)

	// Console I/O runs over pipes: we write to inputWriter, the guest reads
	// inputReader; the guest writes outputWriter, we read outputReader.
	inputReader, inputWriter, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("vzDriver: create input pipe: %w", err)
	}
	outputReader, outputWriter, err := os.Pipe()
	if err != nil {
		inputReader.Close()
		inputWriter.Close()
		return fmt.Errorf("vzDriver: create output pipe: %w", err)
	}

	d.consoleIn = inputWriter
	d.consoleOut = outputReader
	d.inputWriter = inputWriter
	d.outputReader = outputReader

	serialCfg, err := vz.NewVirtioConsoleDeviceSerialPortConfiguration(
		vz.NewFileHandleSerialPortAttachment(inputReader, outputWriter),
	)
	if err != nil {
		return fmt.Errorf("vzDriver: create serial config: %w", err)
	}
	vmCfg.SetSerialPortsVirtualMachineConfiguration([]*vz.VirtioConsoleDeviceSerialPortConfiguration{
		serialCfg,
	})

	if cfg.EnableNetwork {
		natAttachment, err := vz.NewNATNetworkDeviceAttachment()
		if err != nil {
			return fmt.Errorf("vzDriver: create NAT attachment: %w", err)
		}

		netConfig, err := vz.NewVirtioNetworkDeviceConfiguration(natAttachment)
		if err != nil {
			return fmt.Errorf("vzDriver: create network config: %w", err)
		}

		var macAddr *vz.MACAddress
		if cfg.MACAddress != "" {
			hwAddr, err := net.ParseMAC(cfg.MACAddress)
			if err != nil {
				return fmt.Errorf("vzDriver: parse MAC address: %w", err)
			}
			macAddr, err = vz.NewMACAddress(hwAddr)
			if err != nil {
				return fmt.Errorf("vzDriver: create MAC address: %w", err)
			}
		} else {
			macAddr, err = vz.NewRandomLocallyAdministeredMACAddress()
			if err != nil {
				return fmt.Errorf("vzDriver: generate random MAC: %w", err)
			}
		}
		netConfig.SetMACAddress(macAddr)

		vmCfg.SetNetworkDevicesVirtualMachineConfiguration([]*vz.VirtioNetworkDeviceConfiguration{netConfig})
	}

	var storage []vz.StorageDeviceConfiguration

	if cfg.DiskPath != "" {
		diskAttachment, err := vz.NewDiskImageStorageDeviceAttachment(cfg.DiskPath, false)
		if err != nil {
			return fmt.Errorf("vzDriver: create disk attachment: %w", err)
		}
		blockDevice, err := vz.NewVirtioBlockDeviceConfiguration(diskAttachment)
		if err != nil {
			return fmt.Errorf("vzDriver: create block device: %w", err)
		}
		storage = append(storage, blockDevice)
	}

	// The guest tools image is shared by every machine; attach read-only.
	if cfg.GuestToolsPath != "" {
		toolsAttachment, err := vz.NewDiskImageStorageDeviceAttachment(cfg.GuestToolsPath, true)
		if err != nil {
			return fmt.Errorf("vzDriver: create guest tools attachment: %w", err)
		}
		toolsDevice, err := vz.NewVirtioBlockDeviceConfiguration(toolsAttachment)
		if err != nil {
			return fmt.Errorf("vzDriver: create guest tools device: %w", err)
		}
		storage = append(storage, toolsDevice)
	}

	if len(storage) > 0 {
		vmCfg.SetStorageDevicesVirtualMachineConfiguration(storage)
	}

	ok, err := vmCfg.Validate()
	if !ok || err != nil {
		return fmt.Errorf("vzDriver: invalid configuration: %w", err)
	}

	vm, err := vz.NewVirtualMachine(vmCfg)
	if err != nil {
		return fmt.Errorf("vzDriver: create VM: %w", err)
	}

	d.cfg = cfg
	d.vm = vm
	d.state = stateCreated

	return nil
}

func (d *vzDriver) Start(ctx context.Context) (chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateCreated && d.state != stateStopped {
		return nil, ErrNotCreated
	}

	errCh := make(chan error, 1)

	if err := d.vm.Start(); err != nil {
		return nil, fmt.Errorf("vzDriver: start VM: %w", err)
	}

	d.state = stateRunning

	// Monitor guest state in background
	go func() {
		<-d.vm.StateChangedNotify()
		state := d.vm.State()
		if state == vz.VirtualMachineStateStopped || state == vz.VirtualMachineStateError {
			d.mu.Lock()
			d.state = stateStopped
			d.mu.Unlock()
			errCh <- nil
		}
	}()

	return errCh, nil
}

func (d *vzDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateRunning {
		return ErrNotRunning
	}

	canStop, err := d.vm.CanRequestStop()
	if err != nil {
		return fmt.Errorf("vzDriver: check can stop: %w", err)
	}

	if canStop {
		ok, err := d.vm.RequestStop()
		if err != nil || !ok {
			return fmt.Errorf("vzDriver: request stop failed: %w", err)
		}
	}

	d.state = stateStopped
	return nil
}

func (d *vzDriver) Kill(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateRunning {
		return ErrNotRunning
	}

	if err := d.vm.Stop(); err != nil {
		return fmt.Errorf("vzDriver: force stop: %w", err)
	}

	d.state = stateStopped
	return nil
}

func (d *vzDriver) Console() (io.Writer, io.Reader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.consoleIn == nil || d.consoleOut == nil {
		return nil, nil, fmt.Errorf("vzDriver: console not initialized")
	}

	return d.consoleIn, d.consoleOut, nil
}

func (d *vzDriver) CloseConsole() error {
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
		return fmt.Errorf("vzDriver: close console: %v", errs)
	}
	return nil
}
