package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/aman-zulfiqar/rift-liquidity/internal/app"
	"github.com/aman-zulfiqar/rift-liquidity/internal/confirm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <pool>",
		Short: "Identify a pool's family and read its reserves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("pool address: %w", err)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.Classifier.Classify(ctx, addr)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	return cmd
}

func quoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote the counter amount for a deposit into an existing pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			poolAddr, err := pubkeyFlag(cmd, "pool")
			if err != nil {
				return err
			}
			mint, err := pubkeyFlag(cmd, "mint")
			if err != nil {
				return err
			}
			amount, _ := cmd.Flags().GetUint64("amount")
			if amount == 0 {
				return fmt.Errorf("--amount must be positive")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				q, err := a.Quotes.Deposit(ctx, poolAddr, mint, amount)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), q)
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("mint", "", "mint of the amount entered")
	cmd.Flags().Uint64("amount", 0, "raw amount entered")
	return cmd
}

func createQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-quote",
		Short: "Price a pool that does not exist yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := pubkeyFlag(cmd, "base")
			if err != nil {
				return err
			}
			quoteMint, err := pubkeyFlag(cmd, "quote")
			if err != nil {
				return err
			}
			familyName, _ := cmd.Flags().GetString("family")
			family, err := pool.ParseFamily(familyName)
			if err != nil {
				return err
			}
			price, err := decimalFlag(cmd, "price")
			if err != nil {
				return err
			}
			amount, _ := cmd.Flags().GetUint64("amount")
			quoteAmount, _ := cmd.Flags().GetUint64("quote-amount")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				q, err := a.Quotes.Creation(ctx, quote.CreationRequest{
					BaseMint:    base,
					QuoteMint:   quoteMint,
					BaseAmount:  amount,
					QuoteAmount: quoteAmount,
					Family:      family,
					ManualPrice: price,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), q)
			})
		},
	}
	cmd.Flags().String("base", "", "base mint")
	cmd.Flags().String("quote", "", "quote mint")
	cmd.Flags().Uint64("amount", 0, "raw base amount")
	cmd.Flags().Uint64("quote-amount", 0, "raw quote amount; 0 for single-sided")
	cmd.Flags().String("family", "constant_product", "bin_based or constant_product")
	cmd.Flags().String("price", "", "quote per base, used when the oracle cannot price both mints")
	return cmd
}

// statusCmd reports one signature, or the most recent confirmation history.
func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [signature]",
		Short: "Show a transaction's status or recent confirmations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if len(args) == 0 {
					entries, err := a.History.Recent(ctx, limit)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), entries)
				}

				sig, err := solana.SignatureFromBase58(args[0])
				if err != nil {
					return fmt.Errorf("signature: %w", err)
				}
				st, err := a.RPC.GetSignatureStatus(ctx, sig)
				if err != nil {
					return err
				}
				if st == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "not found")
					return nil
				}
				if onChain := confirm.DecodeError(st.Err, nil); onChain != nil {
					return printJSON(cmd.OutOrStdout(), map[string]any{"status": st, "error": onChain})
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
	cmd.Flags().Int("limit", 20, "history entries to show")
	return cmd
}
