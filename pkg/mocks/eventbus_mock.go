// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/enroutehq/enroute/pkg/eventbus"
	"github.com/enroutehq/enroute/pkg/events"
)

// MockEventBus is a mock implementation of the eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// NoopEventBus is an event bus that records nothing and never fails. Use
// it where a test only needs publishing to not blow up.
type NoopEventBus struct{}

func (NoopEventBus) Publish(_ context.Context, _ string, _ eventbus.Event) error { return nil }

func (NoopEventBus) Handle(_ events.EventType, _ eventbus.EventHandler) error { return nil }

func (NoopEventBus) Subscribe(_ context.Context) error { return nil }

func (NoopEventBus) Close() error { return nil }

func (NoopEventBus) GenerateID() string { return uuid.New().String() }
