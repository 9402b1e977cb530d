package relayer

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pushchain/push-session-bridge/sessionClient/errors"
)

// classify maps a JSON-RPC call failure to a bridge error. Errors returned
// by the remote node become RPC errors; transport failures become NETWORK.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return errors.NewRPCError(method+" rejected: "+rpcErr.Error(), err).
			WithContext("rpc_code", rpcErr.ErrorCode())
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return errors.NewNetworkError(method+" failed with HTTP status "+httpErr.Status, err)
	}
	return errors.NewNetworkError(method+" failed", err)
}
