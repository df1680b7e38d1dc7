package mocks

import (
	"context"

	shared "github.com/gravacoach/server/pkg"
	"github.com/gravacoach/server/pkg/types"
)

// --- Mock Database ---

type MockDatabase struct {
	GetCredentialFunc    func(ctx context.Context, userID, provider string) (*types.CredentialRecord, error)
	SetCredentialFunc    func(ctx context.Context, record *types.CredentialRecord) error
	UpdateCredentialFunc func(ctx context.Context, userID, provider string, data map[string]interface{}) error
}

func (m *MockDatabase) GetCredential(ctx context.Context, userID, provider string) (*types.CredentialRecord, error) {
	if m.GetCredentialFunc != nil {
		return m.GetCredentialFunc(ctx, userID, provider)
	}
	return nil, shared.ErrCredentialNotFound
}

func (m *MockDatabase) SetCredential(ctx context.Context, record *types.CredentialRecord) error {
	if m.SetCredentialFunc != nil {
		return m.SetCredentialFunc(ctx, record)
	}
	return nil
}

func (m *MockDatabase) UpdateCredential(ctx context.Context, userID, provider string, data map[string]interface{}) error {
	if m.UpdateCredentialFunc != nil {
		return m.UpdateCredentialFunc(ctx, userID, provider, data)
	}
	return nil
}

// --- Mock Generator ---

type MockGenerator struct {
	PlanFunc func(ctx context.Context, snap types.Snapshot, goal *types.Goal) (*types.Plan, error)
	ChatFunc func(ctx context.Context, question string, recoveryScore *float64) (string, error)
}

func (m *MockGenerator) Plan(ctx context.Context, snap types.Snapshot, goal *types.Goal) (*types.Plan, error) {
	if m.PlanFunc != nil {
		return m.PlanFunc(ctx, snap, goal)
	}
	return &types.Plan{
		Workout: types.Workout{Label: "Endurance", DurationMin: 90},
		Source:  "model",
	}, nil
}

func (m *MockGenerator) Chat(ctx context.Context, question string, recoveryScore *float64) (string, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, question, recoveryScore)
	}
	return "mock reply", nil
}

// --- Mock Secrets ---

type MockSecretStore struct {
	GetSecretFunc func(ctx context.Context, name string) (string, error)
}

func (m *MockSecretStore) GetSecret(ctx context.Context, name string) (string, error) {
	if m.GetSecretFunc != nil {
		return m.GetSecretFunc(ctx, name)
	}
	return "mock-secret-value", nil
}
