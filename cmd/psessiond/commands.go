package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/push-session-bridge/sessionClient/api"
	"github.com/pushchain/push-session-bridge/sessionClient/config"
	"github.com/pushchain/push-session-bridge/sessionClient/constant"
	"github.com/pushchain/push-session-bridge/sessionClient/core"
	"github.com/pushchain/push-session-bridge/sessionClient/custodial"
	"github.com/pushchain/push-session-bridge/sessionClient/db"
	"github.com/pushchain/push-session-bridge/sessionClient/logger"
)

// Set at build time with -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

func InitRootCmd(rootCmd *cobra.Command, v *viper.Viper) {
	rootCmd.AddCommand(startCmd(v))
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(initCmd(v))
	rootCmd.AddCommand(keysCmd(v))
	rootCmd.AddCommand(accountCmd(v))
	rootCmd.AddCommand(executionsCmd(v))
	rootCmd.AddCommand(walletCmd(v))
}

func startCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the session bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := v.GetString(flagHome)
			cfg, err := config.Load(home)
			if err != nil {
				return fmt.Errorf("%w (run `psessiond init` first)", err)
			}
			log := logger.Init(cfg)

			rootKey := v.GetString(flagRootKey)
			if rootKey == "" {
				rootKey = cfg.RootKeyHex
			}
			if rootKey == "" {
				return fmt.Errorf("root key is required: set %s_ROOT_KEY or root_key_hex", constant.EnvPrefix)
			}
			custodian, err := custodial.NewLocalSigner(rootKey, cfg.OrganizationID, v.GetString(flagUserID), v.GetDuration(flagSessionTTL), log)
			if err != nil {
				return err
			}

			database, err := db.OpenFileDB(filepath.Join(home, constant.DatabasesSubdir), constant.DatabaseFile, true)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			client, err := core.Dial(ctx, &cfg, database, custodian, custodian.Address(), reg, log)
			if err != nil {
				database.Close()
				return err
			}
			defer client.Close()

			validateCtx, validateCancel := context.WithTimeout(ctx, time.Minute)
			result, err := client.ValidateStartup(validateCtx)
			validateCancel()
			if err != nil {
				return fmt.Errorf("startup validation failed: %w", err)
			}
			if result != nil {
				log.Info().
					Str("root_address", result.RootAddress.Hex()).
					Bool("chain_healthy", result.ChainHealthy).
					Msg("startup validation passed")
			}

			if err := client.Start(ctx); err != nil {
				return err
			}

			server := api.NewServer(log, client, reg, cfg.QueryServerPort)
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()

			log.Info().Int("port", cfg.QueryServerPort).Msg("session bridge daemon running")
			<-ctx.Done()
			log.Info().Msg("shutdown signal received")
			return nil
		},
	}

	cmd.Flags().String(flagRootKey, "", "Hex root key for the local custodial signer (env "+constant.EnvPrefix+"_ROOT_KEY)")
	cmd.Flags().String(flagUserID, "", "Custodial user id")
	cmd.Flags().Duration(flagSessionTTL, 24*time.Hour, "Custodial session lifetime")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print psessiond version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Name:       %s\n", "psessiond")
			fmt.Printf("Version:    %s\n", Version)
			fmt.Printf("Commit:     %s\n", Commit)
		},
	}
}

func initCmd(v *viper.Viper) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to the node home",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := v.GetString(flagHome)
			path := filepath.Join(home, constant.ConfigSubdir, constant.ConfigFileName)
			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("config already exists at %s (use --overwrite)", path)
			}

			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			cfg.NodeHome = home
			if err := config.Save(cfg, home); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing config")
	return cmd
}
