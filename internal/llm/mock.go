package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockDriver implements Driver for testing. Responses are served in order;
// when the script runs out the last response repeats.
type MockDriver struct {
	mu        sync.Mutex
	responses []string
	failWith  error
	Prompts   []string
}

// NewMockDriver returns a driver scripted with the given responses.
func NewMockDriver(responses ...string) *MockDriver {
	return &MockDriver{responses: responses}
}

// FailWith makes every Complete call return err.
func (m *MockDriver) FailWith(err error) *MockDriver {
	m.failWith = err
	return m
}

func (m *MockDriver) Info() EngineInfo {
	return EngineInfo{Engine: "mock", Model: "mock-model", Endpoint: "mock://local"}
}

func (m *MockDriver) Complete(_ context.Context, prompt string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	if m.failWith != nil {
		return nil, m.failWith
	}
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock driver has no scripted response")
	}
	text := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return &Result{Text: text, Usage: &Usage{InputTokens: 100, OutputTokens: 50}}, nil
}
