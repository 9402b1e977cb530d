package userop

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const accountABIJSON = `[
	{"type":"function","name":"execute","inputs":[
		{"name":"dest","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"func","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"createAccount","inputs":[
		{"name":"owner","type":"address"},
		{"name":"salt","type":"uint256"}],"outputs":[{"name":"ret","type":"address"}]},
	{"type":"function","name":"getNonce","inputs":[
		{"name":"sender","type":"address"},
		{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}
]`

// AccountABI covers the account, factory and EntryPoint methods the bridge calls.
var AccountABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(accountABIJSON))
	if err != nil {
		panic(fmt.Sprintf("userop: invalid account ABI: %v", err))
	}
	AccountABI = parsed
}

// EncodeExecute encodes execute(dest, value, func) for the smart account.
func EncodeExecute(op Operation) ([]byte, error) {
	data := op.Data
	if data == nil {
		data = []byte{}
	}
	return AccountABI.Pack("execute", op.Target, op.NativeValue(), data)
}

// InitCode returns factory ‖ createAccount(owner, salt).
func InitCode(factory, owner common.Address, salt *big.Int) ([]byte, error) {
	call, err := AccountABI.Pack("createAccount", owner, safeBig(salt))
	if err != nil {
		return nil, err
	}
	return append(factory.Bytes(), call...), nil
}

// EncodeGetNonce encodes EntryPoint.getNonce(sender, 0).
func EncodeGetNonce(sender common.Address) ([]byte, error) {
	return AccountABI.Pack("getNonce", sender, new(big.Int))
}

// DecodeNonce decodes the getNonce return data.
func DecodeNonce(ret []byte) (*big.Int, error) {
	out, err := AccountABI.Unpack("getNonce", ret)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected getNonce output length %d", len(out))
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce output type %T", out[0])
	}
	return nonce, nil
}
