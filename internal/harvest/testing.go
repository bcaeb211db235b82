package harvest

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// MockExecutor records commands and returns configured responses.
// Exported for use in integration tests.
type MockExecutor struct {
	responses []MockResponse
	calls     []ExecutorCall
}

// MockResponse defines a canned response for commands matching a prefix.
type MockResponse struct {
	Prefix string
	Output []byte
	Err    error
}

// ExecutorCall records a command invocation.
type ExecutorCall struct {
	Dir  string
	Name string
	Args []string
}

// NewMockExecutor creates an empty mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		responses: make([]MockResponse, 0),
		calls:     make([]ExecutorCall, 0),
	}
}

// AddResponse queues a response for the next command whose full command
// line starts with prefix. Each response is consumed once.
func (m *MockExecutor) AddResponse(prefix string, output []byte, err error) {
	m.responses = append(m.responses, MockResponse{Prefix: prefix, Output: output, Err: err})
}

// Run records the invocation and returns the first matching queued response.
func (m *MockExecutor) Run(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, ExecutorCall{Dir: dir, Name: name, Args: args})

	fullCmd := name + " " + strings.Join(args, " ")
	for i, resp := range m.responses {
		if strings.HasPrefix(fullCmd, resp.Prefix) {
			m.responses = append(m.responses[:i], m.responses[i+1:]...)
			return resp.Output, resp.Err
		}
	}

	return nil, errors.New("no mock response configured for: " + fullCmd)
}

// GetCalls returns all recorded command calls.
func (m *MockExecutor) GetCalls() []ExecutorCall {
	return m.calls
}

// MustGetLastCall returns the last recorded call, failing the test if no
// command ran.
func (m *MockExecutor) MustGetLastCall(t *testing.T) ExecutorCall {
	t.Helper()
	if len(m.calls) == 0 {
		t.Fatal("Expected at least one command call")
	}
	return m.calls[len(m.calls)-1]
}
