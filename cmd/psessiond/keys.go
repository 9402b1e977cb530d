package main

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/push-session-bridge/sessionClient/api"
)

func keysCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage session keys of the root owner's smart account",
	}

	cmd.AddCommand(
		issueKeyCmd(v),
		listKeysCmd(v),
		revokeKeyCmd(v),
	)
	return cmd
}

func issueKeyCmd(v *viper.Viper) *cobra.Command {
	var (
		outputFormat string
		amount       string
		approvals    bool
		targets      []string
		validity     int64
	)

	cmd := &cobra.Command{
		Use:   "issue [permission-kind]",
		Short: "Issue a session key (usdc_transfer_only|usdc_full_access|defi_operations|custom)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.IssueSessionKeyRequest{
				PermissionKind:  args[0],
				ValiditySeconds: validity,
			}
			if cmd.Flags().Changed("max-amount") {
				req.MaxTransferAmount = &amount
			}
			if cmd.Flags().Changed("allow-approvals") {
				req.AllowApprovals = &approvals
			}
			if cmd.Flags().Changed("target") {
				req.AllowedTargets = make([]common.Address, 0, len(targets))
				for _, t := range targets {
					if !common.IsHexAddress(t) {
						return errInvalidAddress(t)
					}
					req.AllowedTargets = append(req.AllowedTargets, common.HexToAddress(t))
				}
			}

			var key map[string]interface{}
			if err := callDaemon(v, http.MethodPost, "/api/v1/session-keys", req, &key); err != nil {
				return err
			}
			return printOutput(key, outputFormat)
		},
	}

	cmd.Flags().StringVar(&amount, "max-amount", "", "Max transfer amount in the asset's smallest unit, or \"unbounded\"")
	cmd.Flags().BoolVar(&approvals, "allow-approvals", false, "Permit approve calls")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "Allowed target contract (repeatable)")
	cmd.Flags().Int64Var(&validity, "validity", 0, "Validity in seconds (default from config)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func listKeysCmd(v *viper.Viper) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active session keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			if err := callDaemon(v, http.MethodGet, "/api/v1/session-keys", nil, &resp); err != nil {
				return err
			}
			return printOutput(resp, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func revokeKeyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke [session-key-id]",
		Short: "Revoke a session key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := callDaemon(v, http.MethodDelete, "/api/v1/session-keys/"+args[0], nil, nil); err != nil {
				return err
			}
			cmd.Printf("revoked %s\n", args[0])
			return nil
		},
	}
}
