// Package lifecycle coordinates application shutdown against in-flight work.
//
// Subsystems that must not be interrupted (a running machine, an export in
// progress) acquire an Assertion from the Coordinator and invalidate it when
// their work ends. When the host application wants to quit it asks the
// Coordinator for a Decision: quit immediately, quit once all assertions have
// cleared, or keep running.
package lifecycle

import "strings"

// Decision is the outcome of one termination request.
type Decision int

const (
	// DecisionCancel keeps the application running.
	DecisionCancel Decision = iota

	// DecisionTerminateNow terminates immediately, even while assertions
	// are still active.
	DecisionTerminateNow

	// DecisionTerminateLater postpones termination until the last active
	// assertion is invalidated.
	DecisionTerminateLater
)

func (d Decision) String() string {
	switch d {
	case DecisionCancel:
		return "cancel"
	case DecisionTerminateNow:
		return "terminate now"
	case DecisionTerminateLater:
		return "terminate later"
	default:
		return "unknown"
	}
}

// Request describes one termination attempt to resolution handlers and to
// the prompter.
type Request struct {
	// Reasons lists why shutdown is blocked, in assertion registration order.
	Reasons []string
}

// ReasonList joins Reasons into a natural-language list, e.g.
// "exporting a VM, installing a VM, and saving a snapshot".
func (r *Request) ReasonList() string {
	switch len(r.Reasons) {
	case 0:
		return ""
	case 1:
		return r.Reasons[0]
	case 2:
		return r.Reasons[0] + " and " + r.Reasons[1]
	default:
		return strings.Join(r.Reasons[:len(r.Reasons)-1], ", ") + ", and " + r.Reasons[len(r.Reasons)-1]
	}
}
