package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/push-session-bridge/sessionClient/api"
)

func errInvalidAddress(s string) error {
	return fmt.Errorf("invalid address %q", s)
}

func accountCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Smart account commands",
	}

	cmd.AddCommand(showAccountCmd(v), deployAccountCmd(v))
	return cmd
}

func showAccountCmd(v *viper.Viper) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the smart account and its deployment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var acct map[string]interface{}
			if err := callDaemon(v, http.MethodGet, "/api/v1/account", nil, &acct); err != nil {
				return err
			}
			return printOutput(acct, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func deployAccountCmd(v *viper.Viper) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the smart account if it is not deployed yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			if err := callDaemon(v, http.MethodPost, "/api/v1/account/deploy", nil, &resp); err != nil {
				return err
			}
			return printOutput(resp, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func executionsCmd(v *viper.Viper) *cobra.Command {
	var (
		outputFormat string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List recent executions of the smart account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			path := "/api/v1/executions?limit=" + strconv.Itoa(limit)
			if err := callDaemon(v, http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			return printOutput(resp, outputFormat)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to show")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func walletCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Preferred wallet commands",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the preferred wallet",
			RunE: func(cmd *cobra.Command, args []string) error {
				var resp api.PreferredWalletResponse
				if err := callDaemon(v, http.MethodGet, "/api/v1/preferred-wallet", nil, &resp); err != nil {
					return err
				}
				if resp.Address == nil {
					cmd.Println("no preferred wallet set")
					return nil
				}
				cmd.Println(resp.Address.Hex())
				return nil
			},
		},
		&cobra.Command{
			Use:   "set [address]",
			Short: "Set the preferred wallet",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !common.IsHexAddress(args[0]) {
					return errInvalidAddress(args[0])
				}
				req := api.PreferredWalletRequest{Address: common.HexToAddress(args[0])}
				return callDaemon(v, http.MethodPut, "/api/v1/preferred-wallet", req, nil)
			},
		},
	)
	return cmd
}
