// Package account tracks the counterfactual smart account of each owner and
// its deployment state machine:
//
//	not_deployed -> deploying -> deployed
//	                         \-> error -> deploying (retry)
package account

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pushchain/push-session-bridge/sessionClient/store"
)

// DeploymentStatus is the on-chain deployment state of a smart account.
type DeploymentStatus string

const (
	StatusNotDeployed DeploymentStatus = store.StatusNotDeployed
	StatusDeploying   DeploymentStatus = store.StatusDeploying
	StatusDeployed    DeploymentStatus = store.StatusDeployed
	StatusError       DeploymentStatus = store.StatusError
)

// Account is a snapshot of a smart account record.
type Account struct {
	Address             common.Address   `json:"account_address"`
	OwnerAddress        common.Address   `json:"owner_address"`
	OwnerOrganizationID string           `json:"owner_organization_id"`
	Salt                common.Hash      `json:"salt"`
	Status              DeploymentStatus `json:"deployment_status"`
	DeployTxID          string           `json:"deploy_tx_id,omitempty"`
	LastError           string           `json:"last_error,omitempty"`
}

// SaltIndex returns the factory salt argument. Each owner has one account.
func (a *Account) SaltIndex() *big.Int {
	return new(big.Int)
}

// Deployer submits and confirms account deployments.
type Deployer interface {
	SubmitDeployment(ctx context.Context, acct Account) (txID string, err error)
	AwaitDeployment(ctx context.Context, acct Account, txID string) error
}

// CodeChecker reports whether contract code exists at an address.
type CodeChecker interface {
	HasCode(ctx context.Context, addr common.Address) (bool, error)
}

// Factory is the fixed CREATE2 configuration used to derive account addresses.
type Factory struct {
	Address      common.Address
	InitCodeHash common.Hash
}

var saltArgs = func() abi.Arguments {
	addressT, _ := abi.NewType("address", "", nil)
	uint256T, _ := abi.NewType("uint256", "", nil)
	return abi.Arguments{{Type: addressT}, {Type: uint256T}}
}()

// Salt returns keccak256(abi.encode(owner, index)).
func (f Factory) Salt(owner common.Address, index *big.Int) common.Hash {
	packed, err := saltArgs.Pack(owner, index)
	if err != nil {
		// Static types cannot fail to pack
		panic(err)
	}
	return crypto.Keccak256Hash(packed)
}

// AccountAddress derives the CREATE2 address for owner.
func (f Factory) AccountAddress(owner common.Address) (common.Address, common.Hash) {
	salt := f.Salt(owner, new(big.Int))
	return crypto.CreateAddress2(f.Address, salt, f.InitCodeHash.Bytes()), salt
}

func fromRecord(rec *store.SmartAccount) *Account {
	return &Account{
		Address:             common.HexToAddress(rec.AccountAddress),
		OwnerAddress:        common.HexToAddress(rec.OwnerAddress),
		OwnerOrganizationID: rec.OwnerOrganizationID,
		Salt:                common.HexToHash(rec.Salt),
		Status:              DeploymentStatus(rec.DeploymentStatus),
		DeployTxID:          rec.DeployTxID,
		LastError:           rec.LastError,
	}
}
