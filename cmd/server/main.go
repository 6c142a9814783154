package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dutyflow/internal/platform/config"
)

// main builds the CLI. Business logic lives in internal service packages; this
// package only wires them together.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var configFile string

	root := &cobra.Command{
		Use:           "dutyflow",
		Short:         "Household duty lifecycle and audit trail service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	load := func() (config.Config, error) {
		return config.Load(v, configFile)
	}
	root.AddCommand(
		newServeCmd(v, load),
		newMigrateCmd(load),
		newRelayCmd(load),
		newTokenCmd(load),
		newGrantAdminCmd(load),
	)
	return root
}

type configLoader func() (config.Config, error)

// bindFlag maps a command flag onto a config key so flags override env and file values.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
}
