package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pushchain/push-session-bridge/sessionClient/account"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// IssueSessionKeyRequest is the body of POST /api/v1/session-keys. Unset
// fields take the configured default policy for the kind.
type IssueSessionKeyRequest struct {
	PermissionKind    string           `json:"permission_kind"`
	MaxTransferAmount *string          `json:"max_transfer_amount,omitempty"` // decimal or "unbounded"
	AllowApprovals    *bool            `json:"allow_approvals,omitempty"`
	AllowedTargets    []common.Address `json:"allowed_targets,omitempty"`
	ValiditySeconds   int64            `json:"validity_seconds,omitempty"`
}

// ExecuteRequest is the body of POST /api/v1/execute.
type ExecuteRequest struct {
	Target               common.Address `json:"target"`
	Value                string         `json:"value,omitempty"` // decimal wei
	Data                 hexutil.Bytes  `json:"data,omitempty"`
	RequiresUserApproval bool           `json:"requires_user_approval"`
}

// DeploymentResponse reports the account's deployment status.
type DeploymentResponse struct {
	AccountAddress common.Address           `json:"account_address"`
	Status         account.DeploymentStatus `json:"deployment_status"`
}

// PreferredWalletRequest sets the caller's preferred wallet.
type PreferredWalletRequest struct {
	Address common.Address `json:"address"`
}

// PreferredWalletResponse reports the caller's preferred wallet.
type PreferredWalletResponse struct {
	Address *common.Address `json:"address"`
}

// ListResponse wraps list results.
type ListResponse struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count"`
}
