package lifecycle

// ResolutionFunc lets an assertion decide a termination request itself.
// Returning ok=false defers to the coordinator's default interactive policy.
type ResolutionFunc func(req *Request) (d Decision, ok bool)

// Assertion is a live reason to delay application shutdown. It is owned by
// the subsystem that acquired it; the coordinator only tracks it in the
// active set until Invalidate is called.
type Assertion struct {
	coord   *Coordinator
	reason  string
	resolve ResolutionFunc

	// guarded by coord.mu
	invalidated bool
}

// Reason returns the human-readable description of why shutdown must wait.
func (a *Assertion) Reason() string {
	return a.reason
}

// Invalidate removes the assertion from the coordinator's active set. If it
// is the last active assertion and a deferred termination is pending, the
// coordinator's completion callback fires. Safe to call more than once.
func (a *Assertion) Invalidate() {
	a.coord.remove(a)
}
