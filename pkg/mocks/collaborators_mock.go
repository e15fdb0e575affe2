package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/enroutehq/enroute/pkg/protocol"
)

// MockContactDirectory is a mock implementation of protocol.ContactDirectory.
type MockContactDirectory struct {
	mock.Mock
}

func (m *MockContactDirectory) GetContact(ctx context.Context, id string) (*protocol.ContactSummary, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.ContactSummary), args.Error(1)
}

// MockActionExecutor is a mock implementation of protocol.ActionExecutor.
type MockActionExecutor struct {
	mock.Mock
}

func (m *MockActionExecutor) Send(ctx context.Context, kind protocol.ActionKind, payload map[string]any) (*protocol.ActionResult, error) {
	args := m.Called(ctx, kind, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.ActionResult), args.Error(1)
}

// MockDecisionProvider is a mock implementation of protocol.DecisionProvider.
type MockDecisionProvider struct {
	mock.Mock
}

func (m *MockDecisionProvider) Decide(ctx context.Context, prompt string, data map[string]any) (*protocol.Decision, error) {
	args := m.Called(ctx, prompt, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*protocol.Decision), args.Error(1)
}

// MockCRMMutator is a mock implementation of protocol.CRMMutator.
type MockCRMMutator struct {
	mock.Mock
}

func (m *MockCRMMutator) MutateContact(ctx context.Context, contactID string, patch map[string]any) error {
	args := m.Called(ctx, contactID, patch)

	return args.Error(0)
}

func (m *MockCRMMutator) MoveDeal(ctx context.Context, dealID, stageID string) error {
	args := m.Called(ctx, dealID, stageID)

	return args.Error(0)
}

func (m *MockCRMMutator) AddTag(ctx context.Context, contactID, tag string) error {
	args := m.Called(ctx, contactID, tag)

	return args.Error(0)
}

func (m *MockCRMMutator) RemoveTag(ctx context.Context, contactID, tag string) error {
	args := m.Called(ctx, contactID, tag)

	return args.Error(0)
}

// MockEnroller is a mock implementation of protocol.SubJourneyEnroller.
type MockEnroller struct {
	mock.Mock
}

func (m *MockEnroller) EnrollContact(ctx context.Context, journeyID, contactID string, enrollmentContext map[string]any) error {
	args := m.Called(ctx, journeyID, contactID, enrollmentContext)

	return args.Error(0)
}
