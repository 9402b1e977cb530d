package api

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pushchain/push-session-bridge/sessionClient/account"
	"github.com/pushchain/push-session-bridge/sessionClient/core"
	"github.com/pushchain/push-session-bridge/sessionClient/sessionkey"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

// SessionBridge defines the methods needed by the API server
type SessionBridge interface {
	CurrentSession(ctx context.Context) (core.SessionContext, error)
	Account(ctx context.Context, sc core.SessionContext) (*account.Account, error)
	EnsureAccountDeployed(ctx context.Context, sc core.SessionContext) (account.DeploymentStatus, error)
	IssueSessionKey(ctx context.Context, sc core.SessionContext, req core.IssueRequest) (*sessionkey.SessionKey, error)
	RevokeSessionKey(ctx context.Context, sc core.SessionContext, id string) error
	ListActiveSessionKeys(ctx context.Context, sc core.SessionContext) ([]*sessionkey.SessionKey, error)
	Execute(ctx context.Context, sc core.SessionContext, op userop.Operation) (*core.ExecutionReceipt, error)
	Executions(ctx context.Context, sc core.SessionContext, limit int) ([]core.ExecutionRecord, error)
	SetPreferredWallet(ctx context.Context, sc core.SessionContext, wallet common.Address) error
	PreferredWallet(ctx context.Context, sc core.SessionContext) (common.Address, bool)
}

var _ SessionBridge = (*core.Client)(nil)
