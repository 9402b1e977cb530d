package relayer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/gas"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

var _ gas.Sponsor = &PaymasterClient{}

// PaymasterClient requests sponsorship with pm_sponsorUserOperation.
type PaymasterClient struct {
	client     *rpc.Client
	entryPoint common.Address
	projectID  string
	logger     zerolog.Logger
}

type sponsorResult struct {
	PaymasterAndData     hexutil.Bytes   `json:"paymasterAndData"`
	CallGasLimit         *hexutil.Uint64 `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Uint64 `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Uint64 `json:"preVerificationGas"`
}

// NewPaymasterClient dials the paymaster service at url.
func NewPaymasterClient(ctx context.Context, url string, entryPoint common.Address, projectID string, logger zerolog.Logger) (*PaymasterClient, error) {
	if url == "" {
		return nil, errors.NewConfigError("paymaster url is required")
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.NewNetworkError("failed to dial paymaster", err)
	}
	return &PaymasterClient{
		client:     client,
		entryPoint: entryPoint,
		projectID:  projectID,
		logger:     logger.With().Str("component", "paymaster_client").Logger(),
	}, nil
}

// Sponsor asks the paymaster to cover op. Unsigned operations are sent with
// a placeholder signature so the service can simulate them.
func (p *PaymasterClient) Sponsor(ctx context.Context, op *userop.UserOperation) (*gas.Sponsorship, error) {
	draft := op.Copy()
	if len(draft.Signature) == 0 {
		draft.Signature = common.CopyBytes(dummySignature)
	}

	var params []interface{}
	params = append(params, draft.ToRPC(), p.entryPoint)
	if p.projectID != "" {
		params = append(params, map[string]string{"projectId": p.projectID})
	}

	var res sponsorResult
	if err := p.client.CallContext(ctx, &res, "pm_sponsorUserOperation", params...); err != nil {
		return nil, classify("pm_sponsorUserOperation", err)
	}

	sp := &gas.Sponsorship{PaymasterAndData: res.PaymasterAndData}
	if res.CallGasLimit != nil {
		sp.CallGasLimit = uint64(*res.CallGasLimit)
	}
	if res.VerificationGasLimit != nil {
		sp.VerificationGasLimit = uint64(*res.VerificationGasLimit)
	}
	if res.PreVerificationGas != nil {
		sp.PreVerificationGas = uint64(*res.PreVerificationGas)
	}

	p.logger.Debug().
		Str("sender", op.Sender.Hex()).
		Int("paymaster_data_len", len(sp.PaymasterAndData)).
		Msg("sponsorship granted")
	return sp, nil
}

// Close closes the connection.
func (p *PaymasterClient) Close() {
	p.client.Close()
}
