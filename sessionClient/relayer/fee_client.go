package relayer

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/account"
	"github.com/pushchain/push-session-bridge/sessionClient/errors"
	"github.com/pushchain/push-session-bridge/sessionClient/gas"
	"github.com/pushchain/push-session-bridge/sessionClient/userop"
)

const callTimeout = 10 * time.Second

var (
	_ gas.FeeOracle       = &FeeClient{}
	_ account.CodeChecker = &FeeClient{}
	_ NonceSource         = &FeeClient{}
)

// FeeClient reads fees, code and nonces from a pool of chain RPC endpoints
// with round-robin failover.
type FeeClient struct {
	clients    []*ethclient.Client
	index      uint64
	entryPoint common.Address
	mu         sync.RWMutex
	logger     zerolog.Logger
}

// NewFeeClient connects to rpcURLs and keeps the endpoints whose chain id
// matches expectedChainID. Endpoints that cannot report a chain id are kept.
func NewFeeClient(rpcURLs []string, expectedChainID int64, entryPoint common.Address, logger zerolog.Logger) (*FeeClient, error) {
	if len(rpcURLs) == 0 {
		return nil, errors.NewConfigError("no RPC URLs provided")
	}

	log := logger.With().Str("component", "fee_client").Logger()
	clients := make([]*ethclient.Client, 0, len(rpcURLs))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, url := range rpcURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to connect to RPC endpoint, skipping")
			continue
		}

		clientChainID, err := client.ChainID(ctx)
		if err != nil {
			log.Warn().
				Err(err).
				Str("url", url).
				Int64("expected_chain_id", expectedChainID).
				Msg("failed to verify chain ID, proceeding with client anyway")
			clients = append(clients, client)
			continue
		}

		if clientChainID.Int64() != expectedChainID {
			client.Close()
			log.Warn().
				Str("url", url).
				Int64("expected_chain_id", expectedChainID).
				Int64("actual_chain_id", clientChainID.Int64()).
				Msg("chain ID mismatch, closing client")
			continue
		}

		clients = append(clients, client)
		log.Info().Str("url", url).Msg("connected to RPC endpoint")
	}

	if len(clients) == 0 {
		return nil, errors.NewNetworkError("failed to connect to any valid RPC endpoints", nil)
	}

	return &FeeClient{
		clients:    clients,
		entryPoint: entryPoint,
		logger:     log,
	}, nil
}

// executeWithFailover runs fn against each endpoint in turn until one succeeds.
func (fc *FeeClient) executeWithFailover(ctx context.Context, operation string, fn func(*ethclient.Client) error) error {
	fc.mu.RLock()
	clients := fc.clients
	fc.mu.RUnlock()

	if len(clients) == 0 {
		return errors.NewNetworkError("no RPC clients available for "+operation, nil)
	}

	var lastErr error
	for attempt := 0; attempt < len(clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		index := atomic.AddUint64(&fc.index, 1) - 1
		client := clients[index%uint64(len(clients))]

		err := fn(client)
		if err == nil {
			return nil
		}
		lastErr = err

		fc.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Err(err).
			Msg("operation failed, trying next endpoint")
	}

	return classify(operation, lastErr)
}

// SuggestFees returns the latest block's base fee and the suggested tip.
func (fc *FeeClient) SuggestFees(ctx context.Context) (*big.Int, *big.Int, error) {
	var baseFee, tip *big.Int
	err := fc.executeWithFailover(ctx, "suggest_fees", func(client *ethclient.Client) error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		var head struct {
			BaseFee *hexutil.Big `json:"baseFeePerGas"`
		}
		if err := client.Client().CallContext(callCtx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
			return err
		}
		t, err := client.SuggestGasTipCap(callCtx)
		if err != nil {
			return err
		}

		baseFee = new(big.Int)
		if head.BaseFee != nil {
			baseFee = (*big.Int)(head.BaseFee)
		}
		tip = t
		return nil
	})
	return baseFee, tip, err
}

// HasCode reports whether addr has contract code at the latest block.
func (fc *FeeClient) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	var code []byte
	err := fc.executeWithFailover(ctx, "get_code", func(client *ethclient.Client) error {
		var innerErr error
		code, innerErr = client.CodeAt(ctx, addr, nil)
		return innerErr
	})
	return len(code) > 0, err
}

// Nonce reads EntryPoint.getNonce(sender, 0).
func (fc *FeeClient) Nonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	data, err := userop.EncodeGetNonce(sender)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode getNonce", err)
	}
	msg := ethereum.CallMsg{To: &fc.entryPoint, Data: data}

	var ret []byte
	err = fc.executeWithFailover(ctx, "get_nonce", func(client *ethclient.Client) error {
		var innerErr error
		ret, innerErr = client.CallContract(ctx, msg, nil)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	nonce, err := userop.DecodeNonce(ret)
	if err != nil {
		return nil, errors.NewRPCError("malformed getNonce result", err)
	}
	return nonce, nil
}

// IsHealthy reports whether any endpoint answers.
func (fc *FeeClient) IsHealthy(ctx context.Context) bool {
	err := fc.executeWithFailover(ctx, "block_number", func(client *ethclient.Client) error {
		_, innerErr := client.BlockNumber(ctx)
		return innerErr
	})
	return err == nil
}

// Close closes all RPC connections.
func (fc *FeeClient) Close() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	for _, client := range fc.clients {
		if client != nil {
			client.Close()
		}
	}
	fc.clients = nil
}
