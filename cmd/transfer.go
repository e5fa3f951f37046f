package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"SponsorPay/internal/client"
	"SponsorPay/internal/services"
)

func newTransferCmd() *cobra.Command {
	var (
		server    string
		recipient string
		amount    string
		keypair   string
		secret    string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send SOL through the sponsor, signing locally with the sender keypair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if recipient == "" || amount == "" {
				return errors.New("--recipient and --amount are required")
			}
			sol, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("--amount must be a number: %w", err)
			}
			if secret == "" {
				secret = os.Getenv("SPONSORPAY_SENDER_SECRET")
			}
			sender, err := services.LoadPrivateKey(secret, keypair)
			if err != nil {
				return fmt.Errorf("load sender key (use --keypair, --secret or SPONSORPAY_SENDER_SECRET): %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := client.New(server, nil).Transfer(ctx, sender, recipient, sol)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Transfer failed: %v\n", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transfer successful! Transaction signature: %s\n", resp.Signature)
			if resp.ExplorerURL != "" {
				fmt.Fprintln(cmd.OutOrStdout(), resp.ExplorerURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "transfer endpoint base URL")
	cmd.Flags().StringVarP(&recipient, "recipient", "r", "", "recipient wallet address")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "amount of SOL")
	cmd.Flags().StringVarP(&keypair, "keypair", "k", "", "sender solana-keygen JSON file")
	cmd.Flags().StringVar(&secret, "secret", "", "sender secret key (base58, JSON array or comma separated)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	return cmd
}
