// File: internal/mocks/mocks.go

// Package mocks holds testify mocks for the seams between the session loop
// and its components, shared by the agent and cmd test suites.
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// -- Driver Mock --

// MockDriver mocks the browser driver the session steers.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockDriver) Execute(ctx context.Context, action schemas.Action) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *MockDriver) Capture(ctx context.Context) (schemas.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return schemas.Snapshot{}, args.Error(1)
	}
	return args.Get(0).(schemas.Snapshot), args.Error(1)
}

func (m *MockDriver) Location(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// -- Planner Mock --

// MockPlanner mocks the model gateway planner. Transcripts passed to Propose
// are recorded so tests can assert on exactly what the gateway would have
// seen on each round trip.
type MockPlanner struct {
	mock.Mock
	mu   sync.Mutex
	seen [][]schemas.Item
}

func (m *MockPlanner) Propose(ctx context.Context, transcript []schemas.Item) ([]schemas.Item, error) {
	m.mu.Lock()
	m.seen = append(m.seen, transcript)
	m.mu.Unlock()

	args := m.Called(ctx, transcript)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Item), args.Error(1)
}

func (m *MockPlanner) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Seen returns the transcript snapshot handed to the nth Propose call.
func (m *MockPlanner) Seen(n int) []schemas.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[n]
}
