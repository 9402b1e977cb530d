package core

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-session-bridge/sessionClient/config"
	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/db"
	"github.com/pushchain/push-session-bridge/sessionClient/gas"
	"github.com/pushchain/push-session-bridge/sessionClient/keys"
	"github.com/pushchain/push-session-bridge/sessionClient/relayer"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

var (
	testEntryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	testFactory    = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	testUSDC       = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	testPayee      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testPaymaster  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type submitted struct {
	Op       *userop.UserOperation
	Strategy gas.Strategy
	TxID     string
}

// fakeRelayer records submissions and confirms them immediately unless
// told otherwise.
type fakeRelayer struct {
	mu          sync.Mutex
	submissions []submitted
	submitErr   func(op *userop.UserOperation, strategy gas.Strategy) error
	await       func(txID string) (*relayer.Receipt, error)
}

func (f *fakeRelayer) Submit(ctx context.Context, op *userop.UserOperation, strategy gas.Strategy) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		if err := f.submitErr(op, strategy); err != nil {
			f.submissions = append(f.submissions, submitted{Op: op.Copy(), Strategy: strategy})
			return "", err
		}
	}
	txID := common.BigToHash(big.NewInt(int64(len(f.submissions) + 1))).Hex()
	f.submissions = append(f.submissions, submitted{Op: op.Copy(), Strategy: strategy, TxID: txID})
	return txID, nil
}

func (f *fakeRelayer) AwaitConfirmation(ctx context.Context, txID string, timeout time.Duration) (*relayer.Receipt, error) {
	if f.await != nil {
		return f.await(txID)
	}
	return &relayer.Receipt{
		UserOpHash: common.HexToHash(txID),
		TxHash:     crypto.Keccak256Hash([]byte(txID)),
		Success:    true,
	}, nil
}

func (f *fakeRelayer) all() []submitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitted(nil), f.submissions...)
}

// executions returns submissions that carry no init code.
func (f *fakeRelayer) executions() []submitted {
	var out []submitted
	for _, s := range f.all() {
		if len(s.Op.InitCode) == 0 {
			out = append(out, s)
		}
	}
	return out
}

type fakeNonces struct{}

func (fakeNonces) Nonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

type fakeFees struct{}

func (fakeFees) SuggestFees(ctx context.Context) (*big.Int, *big.Int, error) {
	return big.NewInt(1_000_000), big.NewInt(100_000), nil
}

type fakeSponsor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSponsor) Sponsor(ctx context.Context, op *userop.UserOperation) (*gas.Sponsorship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &gas.Sponsorship{PaymasterAndData: append(testPaymaster.Bytes(), 0x01)}, nil
}

type testEnv struct {
	client    *Client
	relayer   *fakeRelayer
	sponsor   *fakeSponsor
	custodian *custodial.LocalSigner
	keyring   *keys.Keyring
	sc        SessionContext
}

func testConfig() *config.Config {
	return &config.Config{
		ChainID:                        84532,
		EntryPointAddress:              testEntryPoint.Hex(),
		AccountFactoryAddress:          testFactory.Hex(),
		AccountInitCodeHash:            crypto.Keccak256Hash([]byte("account-proxy")).Hex(),
		USDCAddress:                    testUSDC.Hex(),
		SponsorshipEnabled:             true,
		FallbackToUserFunds:            true,
		DefaultValidityDurationSeconds: 86400,
		ConfirmationTimeoutSeconds:     1,
		DefaultPolicies: []config.PolicyConfig{
			{PermissionKind: "usdc_transfer_only", MaxTransferAmount: "1000000000"},
		},
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)

	rootKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	custodian, err := custodial.NewLocalSigner(hex.EncodeToString(crypto.FromECDSA(rootKey)), "org-1", "user-1", time.Hour, zerolog.Nop())
	require.NoError(t, err)

	env := &testEnv{
		relayer:   &fakeRelayer{},
		sponsor:   &fakeSponsor{},
		custodian: custodian,
		keyring:   keys.NewKeyring(zerolog.Nop()),
	}

	client, err := NewClient(cfg, database, Dependencies{
		Custodian:   custodian,
		RootAddress: custodian.Address(),
		Relayer:     env.relayer,
		Nonces:      fakeNonces{},
		Fees:        fakeFees{},
		Sponsor:     env.sponsor,
		Keys:        env.keyring,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	env.client = client
	env.sc, err = client.CurrentSession(context.Background())
	require.NoError(t, err)
	return env
}

func usdcTransfer(amount int64) userop.Operation {
	data := append([]byte{0xa9, 0x05, 0x9c, 0xbb}, common.LeftPadBytes(testPayee.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(amount).Bytes(), 32)...)
	return userop.Operation{Target: testUSDC, Data: data}
}

// recoverSigner returns the address that signed op.
func recoverSigner(t *testing.T, op *userop.UserOperation) common.Address {
	hash, err := userop.Hash(op, testEntryPoint, big.NewInt(84532))
	require.NoError(t, err)
	require.Len(t, op.Signature, 65)

	sig := common.CopyBytes(op.Signature)
	sig[64] -= 27
	pub, err := crypto.SigToPub(userop.SigningDigest(hash), sig)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub)
}
