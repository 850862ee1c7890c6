// Package guesttools installs the guest tools disk image shared by all
// machines. Installation runs at most once per process: callers converge on
// a single background fetch and observe one terminal state.
package guesttools

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// State describes the installer's position in its one-shot lifecycle.
type State int

const (
	// StateAbsent means the image is not installed and no attempt has
	// started yet.
	StateAbsent State = iota

	// StateInstalling means the single installation attempt is running.
	StateInstalling

	// StateReady means the image is in place. Terminal.
	StateReady

	// StateFailed means the installation attempt failed. Terminal; a new
	// process (or explicit future retry surface) is needed to try again.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateInstalling:
		return "installing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time installer observation.
type Status struct {
	State State
	Err   error // set when State is StateFailed
}

// Store supplies the on-disk image: a cheap existence pre-check and the
// fetch-verify-place operation.
type Store interface {
	// Exists reports whether the image is already in place.
	Exists() (bool, error)

	// Fetch downloads, verifies, and atomically places the image.
	Fetch(ctx context.Context) error
}

// Installer drives the at-most-once installation and broadcasts every state
// transition to subscribers in publish order.
type Installer struct {
	log   *zap.Logger
	store Store

	mu      sync.Mutex
	status  Status
	done    chan struct{} // closed when a terminal state is reached
	subs    map[int]chan Status
	nextSub int
}

// NewInstaller creates an installer. The store's existence check decides the
// initial state: an image already in place starts Ready, otherwise Absent.
func NewInstaller(store Store, log *zap.Logger) *Installer {
	if log == nil {
		log = zap.NewNop()
	}
	i := &Installer{
		log:   log,
		store: store,
		done:  make(chan struct{}),
		subs:  make(map[int]chan Status),
	}

	ok, err := store.Exists()
	if err != nil {
		// Treat an unreadable target as absent; the install attempt will
		// surface the real failure.
		log.Warn("guest tools pre-check failed", zap.Error(err))
	}
	if ok {
		i.status = Status{State: StateReady}
		close(i.done)
	}
	return i
}

// Status returns the current installer status.
func (i *Installer) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Subscribe registers a listener. The current status is delivered first,
// followed by every later transition in order. The returned cancel func
// releases the subscription and closes the channel.
func (i *Installer) Subscribe() (<-chan Status, func()) {
	i.mu.Lock()
	// The lifecycle publishes at most three values per subscriber (the
	// snapshot plus installing and one terminal state), so this buffer can
	// never fill and sends never block.
	ch := make(chan Status, 4)
	ch <- i.status
	id := i.nextSub
	i.nextSub++
	i.subs[id] = ch
	i.mu.Unlock()

	cancel := func() {
		i.mu.Lock()
		if c, ok := i.subs[id]; ok {
			delete(i.subs, id)
			close(c)
		}
		i.mu.Unlock()
	}
	return ch, cancel
}

// InstallIfNeeded ensures the image is installed, starting the single
// installation attempt if none has run yet. It blocks until a terminal
// state is reached (or ctx is cancelled, which abandons the wait but not
// the installation) and returns the terminal error, if any.
func (i *Installer) InstallIfNeeded(ctx context.Context) error {
	i.mu.Lock()
	switch i.status.State {
	case StateReady:
		i.mu.Unlock()
		return nil
	case StateFailed:
		err := i.status.Err
		i.mu.Unlock()
		return err
	case StateInstalling:
		i.mu.Unlock()
	case StateAbsent:
		i.setStatusLocked(Status{State: StateInstalling})
		i.mu.Unlock()
		i.log.Info("installing guest tools")
		go i.install()
	}

	select {
	case <-i.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status.Err
}

// install runs the single fetch. It deliberately does not inherit any
// caller's context: the attempt always runs to its own terminal outcome.
func (i *Installer) install() {
	err := i.store.Fetch(context.Background())

	i.mu.Lock()
	if err != nil {
		i.setStatusLocked(Status{State: StateFailed, Err: err})
	} else {
		i.setStatusLocked(Status{State: StateReady})
	}
	close(i.done)
	i.mu.Unlock()

	if err != nil {
		i.log.Error("guest tools install failed", zap.Error(err))
	} else {
		i.log.Info("guest tools installed")
	}
}

// setStatusLocked records the new status and fans it out to subscribers.
// Caller holds i.mu.
func (i *Installer) setStatusLocked(s Status) {
	i.status = s
	for _, ch := range i.subs {
		ch <- s
	}
}
