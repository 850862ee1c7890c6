// Package prompt implements the interactive termination prompt: the default
// policy used when no assertion resolves a termination request itself.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/javanstorm/vmstudio/internal/lifecycle"
)

// ErrNotInteractive is returned when no terminal is available to show the
// prompt. The coordinator treats it as cancel.
var ErrNotInteractive = errors.New("prompt: no interactive terminal")

// TerminalPrompter renders the three-option termination prompt on a
// terminal and maps the selection to a decision.
type TerminalPrompter struct {
	in  io.Reader
	out io.Writer

	// interactive reports whether a prompt can be shown at all.
	// nil means always interactive (the caller owns the check).
	interactive func() bool
}

// New creates a prompter over explicit reader/writer pairs. It is always
// considered interactive; use NewStdio for TTY detection.
func New(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out}
}

// NewStdio creates a prompter on stdin/stdout that refuses to prompt when
// stdin is not a terminal.
func NewStdio() *TerminalPrompter {
	return &TerminalPrompter{
		in:  os.Stdin,
		out: os.Stdout,
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// PromptTermination shows every blocking reason and returns the user's
// choice. Returns ErrNotInteractive when no terminal is available.
func (p *TerminalPrompter) PromptTermination(req *lifecycle.Request) (lifecycle.Decision, error) {
	if p.interactive != nil && !p.interactive() {
		return 0, ErrNotInteractive
	}

	fmt.Fprintf(p.out, "Quitting now will interrupt %s.\n", req.ReasonList())
	fmt.Fprintln(p.out, "  [1] Quit now")
	fmt.Fprintln(p.out, "  [2] Quit when finished")
	fmt.Fprintln(p.out, "  [3] Cancel")

	scanner := bufio.NewScanner(p.in)
	for {
		fmt.Fprint(p.out, "Choice [1-3]: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, fmt.Errorf("prompt: read choice: %w", err)
			}
			return 0, ErrNotInteractive
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			return lifecycle.DecisionTerminateNow, nil
		case "2":
			return lifecycle.DecisionTerminateLater, nil
		case "3", "":
			return lifecycle.DecisionCancel, nil
		default:
			fmt.Fprintln(p.out, "Please answer 1, 2, or 3.")
		}
	}
}
