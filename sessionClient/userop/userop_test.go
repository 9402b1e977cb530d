package userop

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testEntryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	testSender     = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func sampleOp() *UserOperation {
	return &UserOperation{
		Sender:               testSender,
		Nonce:                big.NewInt(3),
		CallData:             []byte{0xb6, 0x1d, 0x27, 0xf6},
		CallGasLimit:         100_000,
		VerificationGasLimit: 150_000,
		PreVerificationGas:   50_000,
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000),
	}
}

func TestHash(t *testing.T) {
	chainID := big.NewInt(84532)

	t.Run("deterministic and ignores signature", func(t *testing.T) {
		op := sampleOp()
		h1, err := Hash(op, testEntryPoint, chainID)
		require.NoError(t, err)

		op.Signature = []byte{1, 2, 3}
		h2, err := Hash(op, testEntryPoint, chainID)
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	})

	t.Run("fee fields change the hash", func(t *testing.T) {
		sponsored := sampleOp()
		sponsored.MaxFeePerGas = new(big.Int)
		sponsored.MaxPriorityFeePerGas = new(big.Int)

		h1, err := Hash(sponsored, testEntryPoint, chainID)
		require.NoError(t, err)
		h2, err := Hash(sampleOp(), testEntryPoint, chainID)
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2)
	})

	t.Run("chain id and entry point are bound", func(t *testing.T) {
		op := sampleOp()
		h1, err := Hash(op, testEntryPoint, chainID)
		require.NoError(t, err)
		h2, err := Hash(op, testEntryPoint, big.NewInt(8453))
		require.NoError(t, err)
		h3, err := Hash(op, common.HexToAddress("0x02"), chainID)
		require.NoError(t, err)

		assert.NotEqual(t, h1, h2)
		assert.NotEqual(t, h1, h3)
	})

	t.Run("nil amounts hash as zero", func(t *testing.T) {
		a := &UserOperation{Sender: testSender}
		b := &UserOperation{Sender: testSender, Nonce: new(big.Int), MaxFeePerGas: new(big.Int), MaxPriorityFeePerGas: new(big.Int)}
		h1, err := Hash(a, testEntryPoint, chainID)
		require.NoError(t, err)
		h2, err := Hash(b, testEntryPoint, chainID)
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	})
}

func TestSigningDigest(t *testing.T) {
	h := crypto.Keccak256Hash([]byte("x"))
	d := SigningDigest(h)
	assert.Len(t, d, 32)
	assert.NotEqual(t, h.Bytes(), d)
}

func TestEncodeExecute(t *testing.T) {
	target := common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	data, err := EncodeExecute(Operation{Target: target, Data: []byte{0xa9, 0x05, 0x9c, 0xbb}})
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("execute(address,uint256,bytes)"))[:4]
	assert.Equal(t, selector, data[:4])

	args, err := AccountABI.Methods["execute"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, target, args[0].(common.Address))
	assert.Equal(t, 0, args[1].(*big.Int).Sign())
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, args[2].([]byte))
}

func TestInitCode(t *testing.T) {
	factory := common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	owner := common.HexToAddress("0x2222222222222222222222222222222222222222")

	code, err := InitCode(factory, owner, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, factory.Bytes(), code[:20])
	assert.Equal(t, crypto.Keccak256([]byte("createAccount(address,uint256)"))[:4], code[20:24])
}

func TestNonceCodec(t *testing.T) {
	call, err := EncodeGetNonce(testSender)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256([]byte("getNonce(address,uint192)"))[:4], call[:4])

	ret := common.LeftPadBytes(big.NewInt(42).Bytes(), 32)
	nonce, err := DecodeNonce(ret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), nonce.Int64())
}

func TestToRPC(t *testing.T) {
	op := &UserOperation{Sender: testSender, CallGasLimit: 255}
	raw, err := json.Marshal(op.ToRPC())
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "0x0", decoded["nonce"])
	assert.Equal(t, "0xff", decoded["callGasLimit"])
	assert.Equal(t, "0x", decoded["initCode"])
	assert.Equal(t, "0x0", decoded["maxFeePerGas"])
}

func TestCopy(t *testing.T) {
	op := sampleOp()
	cpy := op.Copy()
	cpy.MaxFeePerGas.SetInt64(1)
	cpy.CallData[0] = 0

	assert.Equal(t, int64(2_000_000_000), op.MaxFeePerGas.Int64())
	assert.Equal(t, byte(0xb6), op.CallData[0])
	assert.False(t, op.HasPaymaster())
	assert.Equal(t, uint64(300_000), op.TotalGasLimit())
}
