package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sponsorpay",
	Short: "Fee-sponsored SOL transfers",
	Long: `SponsorPay transfers SOL on behalf of a sender while a sponsor account
pays the network fee. Configure through config.yaml or SPONSORPAY_* variables.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once by main.main().
func Execute() {
	rootCmd.AddCommand(
		newServeCmd(),
		newTransferCmd(),
		newPubkeyCmd(),
	)
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
