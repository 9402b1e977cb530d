// Package store contains GORM-backed SQLite models used by the session bridge.
//
// Database Structure (database file: session_bridge.db):
//
//	databases/
//	└── session_bridge.db
//	    ├── smart_accounts
//	    ├── session_keys
//	    ├── executions
//	    └── kv_entries
package store

import (
	"time"

	"gorm.io/gorm"
)

// Deployment statuses of a SmartAccount.
const (
	StatusNotDeployed = "not_deployed"
	StatusDeploying   = "deploying"
	StatusDeployed    = "deployed"
	StatusError       = "error"
)

// SmartAccount tracks the deployment state of an owner's counterfactual account.
// One record per account address.
type SmartAccount struct {
	gorm.Model
	AccountAddress      string `gorm:"uniqueIndex;not null"` // CREATE2 address (checksummed hex)
	OwnerAddress        string `gorm:"index;not null"`       // Root key address of the owner
	OwnerOrganizationID string `gorm:"index"`                // Custodial organization holding the root key
	Salt                string // 32-byte hex salt used for CREATE2
	DeploymentStatus    string `gorm:"index;not null;default:'not_deployed'"` // "not_deployed", "deploying", "deployed", "error"
	DeployTxID          string // Relayer transaction id of the deployment (empty until submitted)
	LastError           string `gorm:"type:text"` // Error message of the last failed deployment
}

// SessionKey is an issued, policy-scoped delegate key for a SmartAccount.
// Private key material is never stored here.
type SessionKey struct {
	gorm.Model
	SessionKeyID        string    `gorm:"uniqueIndex;not null"`                  // uuid v4
	OwnerAccountAddress string    `gorm:"index:idx_owner_issued;not null"`       // SmartAccount it is scoped to
	PublicKey           string    `gorm:"not null"`                              // Uncompressed secp256k1 public key (hex)
	SignerAddress       string    `gorm:"index;not null"`                        // Address derived from PublicKey
	PermissionKind      string    `gorm:"not null"`                              // Denormalized from Policy for queries
	Policy              []byte    `gorm:"not null"`                              // JSON-encoded canonical policy
	IssuedAt            time.Time `gorm:"index:idx_owner_issued;not null"`       // Issuance time (UTC)
	ExpiresAt           time.Time `gorm:"index;not null"`                        // IssuedAt + validity
	Revoked             bool      `gorm:"index;not null;default:false"`          // Monotonic: never reset to false
	RevokedAt           *time.Time
}

// Execution is the audit record of one executed operation.
type Execution struct {
	gorm.Model
	AccountAddress string `gorm:"index;not null"`
	UserOpHash     string `gorm:"index"`
	TxID           string `gorm:"index"`      // Relayer-reported id (empty if never submitted)
	SignerKind     string `gorm:"not null"`   // "root" or "session"
	SessionKeyID   string `gorm:"index"`      // Empty for root-signed operations
	GasMode        string `gorm:"not null"`   // "sponsored" or "user_funded"
	FellBack       bool   // True when the sponsored attempt failed and the user-funded path was used
	Status         string `gorm:"index;not null"` // "confirmed", "failed", "timeout", "rejected"
	ErrorMsg       string `gorm:"type:text"`
}

// Execution statuses.
const (
	ExecutionConfirmed = "confirmed"
	ExecutionFailed    = "failed"
	ExecutionTimeout   = "timeout"
	ExecutionRejected  = "rejected"
)

// KVEntry is a JSON value persisted under a namespaced key.
type KVEntry struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex;not null"`
	Value []byte // Raw JSON
}

// TableName specifies the table name for KVEntry.
func (KVEntry) TableName() string {
	return "kv_entries"
}
