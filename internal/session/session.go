package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/javanstorm/vmstudio/internal/lifecycle"
	"github.com/javanstorm/vmstudio/pkg/hypervisor"
)

// State represents the session lifecycle state.
type State int

const (
	StateNew State = iota
	StateReady     // Guest created, ready to boot
	StateRunning   // Guest is running
	StateStopping  // Shutdown in progress
	StateStopped   // Clean shutdown complete
	StateError     // Error state
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config holds everything a session needs to boot one machine.
type Config struct {
	// Machine is the persisted definition being run.
	Machine Machine

	// DiskPath is the machine's root disk image.
	DiskPath string

	// Kernel, Initrd, and Cmdline are the boot assets.
	Kernel  string
	Initrd  string
	Cmdline string

	// GuestToolsPath is the installed guest tools image, attached
	// read-only when non-empty.
	GuestToolsPath string

	// EnableNetwork enables guest networking.
	EnableNetwork bool

	// MACAddress is an optional custom MAC (empty = auto-generate).
	MACAddress string

	// ConfirmOnQuit leaves termination requests to the interactive prompt.
	// When false, a running session resolves them itself: it requests a
	// graceful stop and defers termination until the guest has exited.
	ConfirmOnQuit bool
}

// Session runs one machine and holds a termination assertion while it does.
type Session struct {
	log    *zap.Logger
	cfg    Config
	driver hypervisor.Driver
	coord  *lifecycle.Coordinator
	hist   *History

	mu        sync.RWMutex
	state     State
	assertion *lifecycle.Assertion
	errCh     chan error
	done      chan struct{} // closed by monitor once the guest has exited
	lastErr   error
}

// New creates a session for the given machine. The driver is injected so
// callers pick the platform implementation (hypervisor.NewDriver) and tests
// supply fakes.
func New(cfg Config, driver hypervisor.Driver, coord *lifecycle.Coordinator, hist *History, log *zap.Logger) (*Session, error) {
	if driver == nil {
		return nil, fmt.Errorf("session: driver is required")
	}
	if coord == nil {
		return nil, fmt.Errorf("session: coordinator is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	if cfg.Machine.CPUs == 0 {
		cfg.Machine.CPUs = 1
	}
	if cfg.Machine.MemoryMB == 0 {
		cfg.Machine.MemoryMB = 512
	}

	return &Session{
		log:    log.With(zap.String("machine", cfg.Machine.Name)),
		cfg:    cfg,
		driver: driver,
		coord:  coord,
		hist:   hist,
		state:  StateNew,
	}, nil
}

// Prepare validates the configuration and creates guest resources.
func (s *Session) Prepare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNew && s.state != StateStopped {
		return fmt.Errorf("cannot prepare: invalid state %s", s.state)
	}

	vmCfg := &hypervisor.VMConfig{
		CPUs:           s.cfg.Machine.CPUs,
		MemoryMB:       s.cfg.Machine.MemoryMB,
		Kernel:         s.cfg.Kernel,
		Initrd:         s.cfg.Initrd,
		Cmdline:        s.cfg.Cmdline,
		DiskPath:       s.cfg.DiskPath,
		GuestToolsPath: s.cfg.GuestToolsPath,
		EnableNetwork:  s.cfg.EnableNetwork,
		MACAddress:     s.cfg.MACAddress,
	}

	if err := s.driver.Validate(ctx, vmCfg); err != nil {
		return s.failLocked(fmt.Errorf("validate config: %w", err))
	}
	if err := s.driver.Create(ctx, vmCfg); err != nil {
		return s.failLocked(fmt.Errorf("create guest: %w", err))
	}

	s.state = StateReady
	return nil
}

// Start boots the guest and acquires the termination assertion that gates
// application shutdown while the machine runs.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return fmt.Errorf("cannot start: invalid state %s", s.state)
	}

	errCh, err := s.driver.Start(ctx)
	if err != nil {
		return s.failLocked(fmt.Errorf("start guest: %w", err))
	}

	s.errCh = errCh
	s.done = make(chan struct{})
	s.state = StateRunning

	reason := fmt.Sprintf("%q is running", s.cfg.Machine.Name)
	s.assertion = s.coord.Acquire(reason, s.resolutionFunc())

	if s.hist != nil {
		if err := s.hist.RecordBoot(); err != nil {
			// Run history is non-critical.
			s.log.Warn("failed to record boot", zap.Error(err))
		}
	}

	go s.monitor()

	return nil
}

// resolutionFunc returns the assertion's resolution handler, or nil when
// the session defers to the default interactive policy.
func (s *Session) resolutionFunc() lifecycle.ResolutionFunc {
	if s.cfg.ConfirmOnQuit {
		return nil
	}
	return func(req *lifecycle.Request) (lifecycle.Decision, bool) {
		// Ask the guest to shut down and let termination complete once the
		// assertion clears. Stop runs off the evaluation path because it
		// takes the session lock.
		s.log.Info("termination requested, stopping guest")
		go func() {
			if err := s.Stop(context.Background()); err != nil {
				s.log.Warn("graceful stop failed", zap.Error(err))
			}
		}()
		return lifecycle.DecisionTerminateLater, true
	}
}

// Stop gracefully shuts down the guest.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return fmt.Errorf("cannot stop: invalid state %s", s.state)
	}
	s.state = StateStopping
	s.mu.Unlock()

	if err := s.driver.Stop(ctx); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.failLocked(fmt.Errorf("stop guest: %w", err))
	}
	return nil
}

// Kill forcefully terminates the guest.
func (s *Session) Kill(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StateStopping {
		s.mu.Unlock()
		return fmt.Errorf("cannot kill: invalid state %s", s.state)
	}
	s.mu.Unlock()

	if err := s.driver.Kill(ctx); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.failLocked(fmt.Errorf("kill guest: %w", err))
	}
	return nil
}

// Wait blocks until the guest stops and returns its exit error, if any.
func (s *Session) Wait() error {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()

	if done == nil {
		return fmt.Errorf("session not started")
	}
	<-done
	return s.LastError()
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the last error that occurred.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Console returns guest console I/O handles. Only valid while running.
func (s *Session) Console() (io.Writer, io.Reader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateRunning {
		return nil, nil, fmt.Errorf("guest not running")
	}
	return s.driver.Console()
}

// monitor waits for guest exit, records the shutdown, and invalidates the
// termination assertion. The invalidation is what completes a deferred
// termination when this was the last blocking session.
func (s *Session) monitor() {
	err := <-s.errCh

	if s.hist != nil {
		if histErr := s.hist.RecordShutdown(err == nil); histErr != nil {
			s.log.Warn("failed to record shutdown", zap.Error(histErr))
		}
	}

	s.mu.Lock()
	if err != nil {
		s.state = StateError
		s.lastErr = err
	} else {
		s.state = StateStopped
	}
	assertion := s.assertion
	s.assertion = nil
	close(s.done)
	s.mu.Unlock()

	s.log.Info("guest exited", zap.Error(err))
	if assertion != nil {
		assertion.Invalidate()
	}
}

// failLocked records an error state. Caller holds s.mu.
func (s *Session) failLocked(err error) error {
	s.state = StateError
	s.lastErr = err
	return err
}
