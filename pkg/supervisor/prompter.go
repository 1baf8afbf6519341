package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

type Choice int

const (
	Retry Choice = iota
	Cancel
)

func (c Choice) String() string {
	if c == Cancel {
		return "cancel"
	}
	return "retry"
}

// Decision is what the operator is asked when the failure threshold is hit.
type Decision struct {
	Title    string
	Message  string
	Failures int
}

func connectFailedDecision(failures int) Decision {
	return Decision{
		Title:    "Server Connection Failed",
		Message:  "Cannot connect to server. The agent has failed to connect multiple times.",
		Failures: failures,
	}
}

func connectionLostDecision(failures int) Decision {
	return Decision{
		Title:    "Server Connection Lost",
		Message:  "Lost connection to server. Heartbeat failed multiple times.",
		Failures: failures,
	}
}

// Prompter asks the operator whether to keep trying after repeated failures.
type Prompter interface {
	Decide(ctx context.Context, d Decision) Choice
}

// AutoRetry always retries. Used when nobody is attached to the terminal.
type AutoRetry struct{}

func (AutoRetry) Decide(context.Context, Decision) Choice { return Retry }

// TerminalPrompter reads the decision from a line-oriented terminal.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	once  sync.Once
	lines chan string
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompter) readLines() {
	defer close(p.lines)
	sc := bufio.NewScanner(p.In)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
}

// Decide blocks until the operator answers. A closed input or a cancelled
// context count as cancel.
func (p *TerminalPrompter) Decide(ctx context.Context, d Decision) Choice {
	p.once.Do(func() {
		p.lines = make(chan string)
		go p.readLines()
	})

	fmt.Fprintf(p.Out, "\n%s\n%s (%d consecutive failures)\n", d.Title, d.Message, d.Failures)
	for {
		fmt.Fprint(p.Out, "[r]etry / [c]ancel: ")
		select {
		case <-ctx.Done():
			return Cancel
		case line, ok := <-p.lines:
			if !ok {
				return Cancel
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "r", "retry":
				return Retry
			case "c", "cancel":
				return Cancel
			}
		}
	}
}

// IsInteractive reports whether f is a terminal, including Cygwin/MSYS ptys.
func IsInteractive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
