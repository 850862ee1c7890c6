package lifecycle

import (
	"sync"

	"go.uber.org/zap"
)

// Prompter presents the default interactive termination choice.
type Prompter interface {
	// PromptTermination shows why shutdown is blocked and returns the
	// user's choice. An error means no prompt could be shown (for example
	// a non-interactive session); the coordinator treats that as cancel.
	PromptTermination(req *Request) (Decision, error)
}

// Coordinator gates application termination on active assertions.
//
// EvaluateTermination implements the decision policy: with no active
// assertions termination proceeds; otherwise the first assertion's
// resolution handler decides, falling back to the interactive prompt.
// A "terminate later" decision arms deferred completion: invalidating the
// last assertion then invokes the completion callback exactly once.
type Coordinator struct {
	log      *zap.Logger
	prompter Prompter
	complete func()

	// evalMu serializes termination evaluations. It is separate from mu so
	// that assertions can still be invalidated while a prompt is showing.
	evalMu sync.Mutex

	mu             sync.Mutex
	assertions     []*Assertion
	deferTerminate bool
	completed      bool
}

// NewCoordinator creates a coordinator. The complete callback is invoked at
// most once, when a deferred termination becomes unblocked.
func NewCoordinator(prompter Prompter, complete func(), log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		log:      log,
		prompter: prompter,
		complete: complete,
	}
}

// Acquire registers a new assertion with the given reason. The resolve
// handler is optional; nil defers to the default interactive policy.
func (c *Coordinator) Acquire(reason string, resolve ResolutionFunc) *Assertion {
	a := &Assertion{coord: c, reason: reason, resolve: resolve}

	c.mu.Lock()
	c.assertions = append(c.assertions, a)
	c.mu.Unlock()

	c.log.Debug("termination assertion acquired", zap.String("reason", reason))
	return a
}

// ActiveReasons returns the reasons of all active assertions in
// registration order.
func (c *Coordinator) ActiveReasons() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reasonsLocked()
}

// TerminationPending reports whether a deferred termination is armed.
func (c *Coordinator) TerminationPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferTerminate
}

// EvaluateTermination decides one termination attempt. It blocks while the
// interactive prompt is showing; at most one evaluation runs at a time.
func (c *Coordinator) EvaluateTermination() Decision {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()

	c.mu.Lock()
	if len(c.assertions) == 0 {
		c.mu.Unlock()
		return DecisionTerminateNow
	}
	first := c.assertions[0]
	req := &Request{Reasons: c.reasonsLocked()}
	c.mu.Unlock()

	var d Decision
	var resolved bool
	if first.resolve != nil {
		d, resolved = first.resolve(req)
	}
	if !resolved {
		d = c.promptDecision(req)
	}

	switch d {
	case DecisionCancel, DecisionTerminateNow:
		// Nothing to record; the caller acts on the decision.
	case DecisionTerminateLater:
		c.armDeferred()
	default:
		// A decision outside the known set is a defect in a resolution
		// handler or prompter. Log it loudly and keep the process alive.
		c.log.DPanic("unrecognized termination decision",
			zap.Int("decision", int(d)),
			zap.Strings("reasons", req.Reasons))
		d = DecisionCancel
	}

	c.log.Info("termination evaluated",
		zap.Stringer("decision", d),
		zap.Strings("reasons", req.Reasons))
	return d
}

// armDeferred sets the deferred-termination flag. Arming is idempotent; the
// flag is never cleared within the process lifetime. If the active set
// emptied while the decision was being made, completion fires immediately.
func (c *Coordinator) armDeferred() {
	c.mu.Lock()
	c.deferTerminate = true
	fire := len(c.assertions) == 0 && !c.completed
	if fire {
		c.completed = true
	}
	c.mu.Unlock()

	if fire {
		c.fireComplete()
	}
}

func (c *Coordinator) promptDecision(req *Request) Decision {
	if c.prompter == nil {
		c.log.Warn("no prompter configured, cancelling termination")
		return DecisionCancel
	}
	d, err := c.prompter.PromptTermination(req)
	if err != nil {
		// Without a usable prompt the safe answer is to keep running.
		c.log.Warn("termination prompt unavailable, cancelling", zap.Error(err))
		return DecisionCancel
	}
	return d
}

// remove takes an assertion out of the active set. Called via
// Assertion.Invalidate.
func (c *Coordinator) remove(a *Assertion) {
	c.mu.Lock()
	if a.invalidated {
		c.mu.Unlock()
		return
	}
	a.invalidated = true
	for i, cur := range c.assertions {
		if cur == a {
			c.assertions = append(c.assertions[:i], c.assertions[i+1:]...)
			break
		}
	}
	fire := len(c.assertions) == 0 && c.deferTerminate && !c.completed
	if fire {
		c.completed = true
	}
	c.mu.Unlock()

	c.log.Debug("termination assertion invalidated", zap.String("reason", a.reason))
	if fire {
		c.fireComplete()
	}
}

func (c *Coordinator) fireComplete() {
	c.log.Info("last assertion cleared, completing deferred termination")
	if c.complete != nil {
		c.complete()
	}
}

func (c *Coordinator) reasonsLocked() []string {
	reasons := make([]string, len(c.assertions))
	for i, a := range c.assertions {
		reasons[i] = a.reason
	}
	return reasons
}
