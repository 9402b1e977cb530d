package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pushchain/push-session-bridge/sessionClient/config"
	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/db"
	"github.com/pushchain/push-session-bridge/sessionClient/gas"
	"github.com/pushchain/push-session-bridge/sessionClient/metrics"
	"github.com/pushchain/push-session-bridge/sessionClient/relayer"
)

// Dial connects the chain, bundler and paymaster endpoints named in cfg and
// builds a Client. reg may be nil to disable metrics.
func Dial(ctx context.Context, cfg *config.Config, database *db.DB, custodian custodial.Signer, root common.Address, reg prometheus.Registerer, log zerolog.Logger) (*Client, error) {
	entryPoint := common.HexToAddress(cfg.EntryPointAddress)

	chain, err := relayer.NewFeeClient(cfg.RPCURLs, cfg.ChainID, entryPoint, log)
	if err != nil {
		return nil, err
	}
	closers := []func(){chain.Close}
	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}

	bundler, err := relayer.NewBundlerClient(ctx, cfg.BundlerURL, entryPoint, cfg.ReceiptPollInterval(), log)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, bundler.Close)

	var sponsor gas.Sponsor
	if cfg.SponsorshipEnabled && cfg.PaymasterURL != "" {
		paymaster, err := relayer.NewPaymasterClient(ctx, cfg.PaymasterURL, entryPoint, cfg.ProjectID, log)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, paymaster.Close)
		sponsor = paymaster
	} else if cfg.SponsorshipEnabled {
		log.Warn().Msg("sponsorship enabled without paymaster_url, operations will be user-funded")
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	client, err := NewClient(cfg, database, Dependencies{
		Custodian:   custodian,
		RootAddress: root,
		Relayer:     bundler,
		Nonces:      chain,
		Fees:        chain,
		Sponsor:     sponsor,
		Code:        chain,
		Metrics:     m,
		Closers:     closers,
	}, log)
	if err != nil {
		closeAll()
		return nil, err
	}
	client.validator = NewStartupValidator(log, entryPoint, bundler, chain, custodian, root)
	return client, nil
}
