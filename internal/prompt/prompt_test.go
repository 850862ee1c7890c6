package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/javanstorm/vmstudio/internal/lifecycle"
)

func TestPromptChoiceMapping(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  lifecycle.Decision
	}{
		{"quit now", "1\n", lifecycle.DecisionTerminateNow},
		{"quit when finished", "2\n", lifecycle.DecisionTerminateLater},
		{"cancel", "3\n", lifecycle.DecisionCancel},
		{"empty defaults to cancel", "\n", lifecycle.DecisionCancel},
		{"whitespace trimmed", "  2  \n", lifecycle.DecisionTerminateLater},
		{"invalid then valid", "x\n9\n1\n", lifecycle.DecisionTerminateNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := New(strings.NewReader(tt.input), &out)

			got, err := p.PromptTermination(&lifecycle.Request{Reasons: []string{"exporting a VM"}})
			if err != nil {
				t.Fatalf("PromptTermination() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("PromptTermination() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPromptShowsAllReasons(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("3\n"), &out)

	req := &lifecycle.Request{Reasons: []string{"exporting a VM", "installing a VM"}}
	if _, err := p.PromptTermination(req); err != nil {
		t.Fatalf("PromptTermination() error = %v", err)
	}

	text := out.String()
	for _, reason := range req.Reasons {
		if !strings.Contains(text, reason) {
			t.Errorf("prompt text missing reason %q:\n%s", reason, text)
		}
	}
}

func TestPromptNotInteractive(t *testing.T) {
	p := New(strings.NewReader("1\n"), &bytes.Buffer{})
	p.interactive = func() bool { return false }

	if _, err := p.PromptTermination(&lifecycle.Request{Reasons: []string{"busy"}}); !errors.Is(err, ErrNotInteractive) {
		t.Errorf("PromptTermination() error = %v, want %v", err, ErrNotInteractive)
	}
}

func TestPromptEOF(t *testing.T) {
	p := New(strings.NewReader(""), &bytes.Buffer{})

	if _, err := p.PromptTermination(&lifecycle.Request{Reasons: []string{"busy"}}); !errors.Is(err, ErrNotInteractive) {
		t.Errorf("PromptTermination() error = %v on EOF, want %v", err, ErrNotInteractive)
	}
}
