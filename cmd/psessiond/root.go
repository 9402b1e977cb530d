package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pushchain/push-session-bridge/sessionClient/constant"
)

const (
	flagHome       = "home"
	flagRootKey    = "root-key"
	flagUserID     = "user-id"
	flagSessionTTL = "session-ttl"
)

func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(constant.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:          "psessiond",
		Short:        "Push Session Bridge Daemon",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return v.BindPFlags(cmd.Flags())
		},
	}
	rootCmd.PersistentFlags().String(flagHome, constant.DefaultNodeHome, "Node home directory")

	InitRootCmd(rootCmd, v) // add subcommands like `start` and `version`

	return rootCmd
}
