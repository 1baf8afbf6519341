package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/linefleet/linefleet/pkg/supervisor"
)

// MockProcessChecker reports a configurable set of process names as running.
type MockProcessChecker struct {
	mu      sync.Mutex
	running map[string]bool
	queries []string
}

func NewMockProcessChecker(names ...string) *MockProcessChecker {
	m := &MockProcessChecker{running: map[string]bool{}}
	for _, n := range names {
		m.running[strings.ToLower(n)] = true
	}
	return m
}

func (m *MockProcessChecker) SetRunning(name string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[strings.ToLower(name)] = running
}

func (m *MockProcessChecker) IsRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, name)
	return m.running[strings.ToLower(name)]
}

// Queries returns how many liveness checks were made.
func (m *MockProcessChecker) Queries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// ScriptedPrompter answers decisions from a fixed script. Once the script is
// exhausted it keeps returning Fallback.
type ScriptedPrompter struct {
	Fallback supervisor.Choice

	mu        sync.Mutex
	script    []supervisor.Choice
	decisions []supervisor.Decision
}

func NewScriptedPrompter(choices ...supervisor.Choice) *ScriptedPrompter {
	return &ScriptedPrompter{script: choices, Fallback: supervisor.Cancel}
}

func (p *ScriptedPrompter) Decide(_ context.Context, d supervisor.Decision) supervisor.Choice {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decisions = append(p.decisions, d)
	if len(p.script) == 0 {
		return p.Fallback
	}
	c := p.script[0]
	p.script = p.script[1:]
	return c
}

func (p *ScriptedPrompter) Decisions() []supervisor.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]supervisor.Decision(nil), p.decisions...)
}
