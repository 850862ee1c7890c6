package guesttools

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStore gates Fetch on a channel so tests control when the attempt
// finishes.
type fakeStore struct {
	exists   bool
	fetchErr error
	release  chan struct{} // nil = finish immediately
	fetches  atomic.Int32
}

func (s *fakeStore) Exists() (bool, error) {
	return s.exists, nil
}

func (s *fakeStore) Fetch(ctx context.Context) error {
	s.fetches.Add(1)
	if s.release != nil {
		<-s.release
	}
	return s.fetchErr
}

func TestInitialStateFromPreCheck(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		want   State
	}{
		{"image present", true, StateReady},
		{"image absent", false, StateAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := NewInstaller(&fakeStore{exists: tt.exists}, nil)
			if got := i.Status().State; got != tt.want {
				t.Errorf("Status().State = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstallIfNeededAlreadyReady(t *testing.T) {
	store := &fakeStore{exists: true}
	i := NewInstaller(store, nil)

	if err := i.InstallIfNeeded(context.Background()); err != nil {
		t.Fatalf("InstallIfNeeded() = %v, want nil", err)
	}
	if n := store.fetches.Load(); n != 0 {
		t.Errorf("Fetch called %d times for a present image, want 0", n)
	}
}

func TestConcurrentCallersSingleAttempt(t *testing.T) {
	store := &fakeStore{release: make(chan struct{})}
	i := NewInstaller(store, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = i.InstallIfNeeded(context.Background())
		}(n)
	}

	// Let every caller pile up on the in-flight attempt, then finish it.
	deadline := time.After(2 * time.Second)
	for i.Status().State != StateInstalling {
		select {
		case <-deadline:
			t.Fatal("installer never entered installing state")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(store.release)
	wg.Wait()

	if n := store.fetches.Load(); n != 1 {
		t.Errorf("Fetch called %d times, want 1", n)
	}
	for n, err := range errs {
		if err != nil {
			t.Errorf("caller %d: InstallIfNeeded() = %v, want nil", n, err)
		}
	}
	if got := i.Status().State; got != StateReady {
		t.Errorf("Status().State = %v, want %v", got, StateReady)
	}
}

func TestFailureIsTerminalAndNotRetried(t *testing.T) {
	fetchErr := errors.New("verification failed")
	store := &fakeStore{fetchErr: fetchErr}
	i := NewInstaller(store, nil)

	if err := i.InstallIfNeeded(context.Background()); !errors.Is(err, fetchErr) {
		t.Fatalf("InstallIfNeeded() = %v, want %v", err, fetchErr)
	}
	if got := i.Status().State; got != StateFailed {
		t.Fatalf("Status().State = %v, want %v", got, StateFailed)
	}

	// A second call must observe the same terminal state without a retry.
	if err := i.InstallIfNeeded(context.Background()); !errors.Is(err, fetchErr) {
		t.Errorf("second InstallIfNeeded() = %v, want %v", err, fetchErr)
	}
	if n := store.fetches.Load(); n != 1 {
		t.Errorf("Fetch called %d times, want 1", n)
	}
	if got := i.Status().State; got != StateFailed {
		t.Errorf("Status().State = %v after second call, want %v", got, StateFailed)
	}
}

func TestTerminalStateMonotonic(t *testing.T) {
	store := &fakeStore{}
	i := NewInstaller(store, nil)

	if err := i.InstallIfNeeded(context.Background()); err != nil {
		t.Fatalf("InstallIfNeeded() = %v, want nil", err)
	}
	for n := 0; n < 3; n++ {
		if err := i.InstallIfNeeded(context.Background()); err != nil {
			t.Fatalf("repeat InstallIfNeeded() = %v, want nil", err)
		}
		if got := i.Status().State; got != StateReady {
			t.Fatalf("Status().State = %v after repeat call, want %v", got, StateReady)
		}
	}
	if n := store.fetches.Load(); n != 1 {
		t.Errorf("Fetch called %d times, want 1", n)
	}
}

func TestSubscribeDeliversSnapshotAndTransitions(t *testing.T) {
	store := &fakeStore{release: make(chan struct{})}
	i := NewInstaller(store, nil)

	ch, cancel := i.Subscribe()
	defer cancel()

	if got := (<-ch).State; got != StateAbsent {
		t.Fatalf("first delivery = %v, want %v", got, StateAbsent)
	}

	go func() { _ = i.InstallIfNeeded(context.Background()) }()

	if got := recvStatus(t, ch).State; got != StateInstalling {
		t.Fatalf("second delivery = %v, want %v", got, StateInstalling)
	}

	close(store.release)
	if got := recvStatus(t, ch).State; got != StateReady {
		t.Fatalf("third delivery = %v, want %v", got, StateReady)
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	store := &fakeStore{}
	i := NewInstaller(store, nil)

	ch, cancel := i.Subscribe()
	<-ch // snapshot
	cancel()

	if err := i.InstallIfNeeded(context.Background()); err != nil {
		t.Fatalf("InstallIfNeeded() = %v, want nil", err)
	}

	// The channel is closed and saw no post-cancel transitions.
	if _, ok := <-ch; ok {
		t.Error("received delivery after cancel")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateAbsent, "absent"},
		{StateInstalling, "installing"},
		{StateReady, "ready"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func recvStatus(t *testing.T, ch <-chan Status) Status {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status delivery")
		return Status{}
	}
}
