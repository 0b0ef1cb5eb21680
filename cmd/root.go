package cmd

import (
	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	rootCmd := &cobra.Command{
		Use:   "ammanctl",
		Short: "ammanctl - Solana test validator supervisor",
		Long: `ammanctl starts, inspects and stops the local Solana test validator run by amman,
and talks to the amman relay to query validator state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := core.InitializeConfig(configPath, verbose); err != nil {
				return err
			}
			core.SetupLogging(core.Config.Verbose)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", core.DefaultConfigPath(),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewStartCommand(),
		NewStopCommand(),
		NewRestartCommand(),
		NewStatusCommand(),
		NewRunCommand(),
		NewLabelsCommand(),
		NewAccountsCommand(),
		NewHistoryCommand(),
		NewLogsCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
