package api

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/pushchain/push-session-bridge/sessionClient/account"
	"github.com/pushchain/push-session-bridge/sessionClient/core"
	"github.com/pushchain/push-session-bridge/sessionClient/sessionkey"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// mockBridge implements SessionBridge for testing
type mockBridge struct {
	mock.Mock
}

func (m *mockBridge) CurrentSession(ctx context.Context) (core.SessionContext, error) {
	args := m.Called(ctx)
	return args.Get(0).(core.SessionContext), args.Error(1)
}

func (m *mockBridge) Account(ctx context.Context, sc core.SessionContext) (*account.Account, error) {
	args := m.Called(ctx, sc)
	acct, _ := args.Get(0).(*account.Account)
	return acct, args.Error(1)
}

func (m *mockBridge) EnsureAccountDeployed(ctx context.Context, sc core.SessionContext) (account.DeploymentStatus, error) {
	args := m.Called(ctx, sc)
	return args.Get(0).(account.DeploymentStatus), args.Error(1)
}

func (m *mockBridge) IssueSessionKey(ctx context.Context, sc core.SessionContext, req core.IssueRequest) (*sessionkey.SessionKey, error) {
	args := m.Called(ctx, sc, req)
	key, _ := args.Get(0).(*sessionkey.SessionKey)
	return key, args.Error(1)
}

func (m *mockBridge) RevokeSessionKey(ctx context.Context, sc core.SessionContext, id string) error {
	return m.Called(ctx, sc, id).Error(0)
}

func (m *mockBridge) ListActiveSessionKeys(ctx context.Context, sc core.SessionContext) ([]*sessionkey.SessionKey, error) {
	args := m.Called(ctx, sc)
	keys, _ := args.Get(0).([]*sessionkey.SessionKey)
	return keys, args.Error(1)
}

func (m *mockBridge) Execute(ctx context.Context, sc core.SessionContext, op userop.Operation) (*core.ExecutionReceipt, error) {
	args := m.Called(ctx, sc, op)
	receipt, _ := args.Get(0).(*core.ExecutionReceipt)
	return receipt, args.Error(1)
}

func (m *mockBridge) Executions(ctx context.Context, sc core.SessionContext, limit int) ([]core.ExecutionRecord, error) {
	args := m.Called(ctx, sc, limit)
	records, _ := args.Get(0).([]core.ExecutionRecord)
	return records, args.Error(1)
}

func (m *mockBridge) SetPreferredWallet(ctx context.Context, sc core.SessionContext, wallet common.Address) error {
	return m.Called(ctx, sc, wallet).Error(0)
}

func (m *mockBridge) PreferredWallet(ctx context.Context, sc core.SessionContext) (common.Address, bool) {
	args := m.Called(ctx, sc)
	return args.Get(0).(common.Address), args.Bool(1)
}
