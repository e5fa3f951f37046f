package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"SponsorPay/internal/config"
	"SponsorPay/internal/services"
)

func newPubkeyCmd() *cobra.Command {
	var (
		keyfile    string
		configFile string
	)
	cmd := &cobra.Command{
		Use:   "pubkey [secret]",
		Short: "Print the base58 public key of a secret key (defaults to the configured sponsor)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := ""
			if len(args) == 1 {
				secret = args[0]
			}
			if secret == "" && keyfile == "" {
				cfg, err := config.Load(configFile)
				if err != nil {
					return err
				}
				secret, keyfile = cfg.Solana.SponsorSecret, cfg.Solana.SponsorKeyfile
			}
			key, err := services.LoadPrivateKey(secret, keyfile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.PublicKey().String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyfile, "keyfile", "k", "", "solana-keygen JSON file")
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml)")
	return cmd
}
