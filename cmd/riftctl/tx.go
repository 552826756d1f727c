package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/aman-zulfiqar/rift-liquidity/internal/app"
	"github.com/aman-zulfiqar/rift-liquidity/internal/orchestrator"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/withdraw"
)

// owner is the configured wallet, or --owner for a dry run without a key.
func owner(cmd *cobra.Command, a *app.App) (solana.PublicKey, error) {
	if a.Wallet != nil {
		return a.Wallet.PublicKey(), nil
	}
	if raw, _ := cmd.Flags().GetString("owner"); raw != "" {
		return solana.PublicKeyFromBase58(raw)
	}
	return solana.PublicKey{}, fmt.Errorf("configure wallet-private-key or pass --owner with --dry-run")
}

func familyFlag(cmd *cobra.Command) (pool.Family, error) {
	name, _ := cmd.Flags().GetString("family")
	return pool.ParseFamily(name)
}

func launchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Create a rift and seed its pool in one atomic bundle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			underlying, err := pubkeyFlag(cmd, "underlying")
			if err != nil {
				return err
			}
			quoteMint, err := pubkeyFlag(cmd, "quote")
			if err != nil {
				return err
			}
			partner, err := optionalPubkeyFlag(cmd, "partner")
			if err != nil {
				return err
			}
			family, err := familyFlag(cmd)
			if err != nil {
				return err
			}
			price, err := decimalFlag(cmd, "price")
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			feeBps, _ := cmd.Flags().GetUint16("transfer-fee-bps")
			prefix, _ := cmd.Flags().GetUint8("prefix-type")
			wrapAmount, _ := cmd.Flags().GetUint64("wrap-amount")
			quoteAmount, _ := cmd.Flags().GetUint64("quote-amount")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				creator, err := owner(cmd, a)
				if err != nil {
					return err
				}
				plan, err := a.Builder.Launch(ctx, orchestrator.LaunchIntent{
					Creator:        creator,
					UnderlyingMint: underlying,
					Name:           name,
					TransferFeeBps: feeBps,
					PartnerWallet:  partner,
					PrefixType:     prefix,
					WrapAmount:     wrapAmount,
					QuoteMint:      quoteMint,
					QuoteAmount:    quoteAmount,
					Family:         family,
					ManualPrice:    price,
				})
				if err != nil {
					return err
				}
				return execute(ctx, cmd, a, plan)
			})
		},
	}
	cmd.Flags().String("underlying", "", "mint the rift wraps")
	cmd.Flags().String("name", "", "rift token name")
	cmd.Flags().Uint16("transfer-fee-bps", 80, "rift mint transfer fee, 70 to 100 bps")
	cmd.Flags().String("partner", "", "partner wallet receiving half the fees")
	cmd.Flags().Uint8("prefix-type", 0, "name prefix variant")
	cmd.Flags().Uint64("wrap-amount", 0, "raw underlying to wrap into the pool")
	cmd.Flags().String("quote", "", "quote mint of the pool")
	cmd.Flags().Uint64("quote-amount", 0, "raw quote amount; 0 for single-sided")
	cmd.Flags().String("family", "constant_product", "bin_based or constant_product")
	cmd.Flags().String("price", "", "quote per underlying when the oracle cannot price it")
	cmd.Flags().String("owner", "", "creator for --dry-run without a wallet")
	addRunFlags(cmd)
	return cmd
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Deposit into an existing pool",
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
			single, _ := cmd.Flags().GetBool("single-sided")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				o, err := owner(cmd, a)
				if err != nil {
					return err
				}
				plan, err := a.Builder.AddLiquidity(ctx, orchestrator.AddLiquidityIntent{
					Owner:       o,
					Pool:        poolAddr,
					SourceMint:  mint,
					Amount:      amount,
					SingleSided: single,
				})
				if err != nil {
					return err
				}
				return execute(ctx, cmd, a, plan)
			})
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("mint", "", "mint of the amount entered")
	cmd.Flags().Uint64("amount", 0, "raw amount entered")
	cmd.Flags().Bool("single-sided", false, "deposit only the entered side")
	cmd.Flags().String("owner", "", "owner for --dry-run without a wallet")
	addRunFlags(cmd)
	return cmd
}

func createPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-pool",
		Short: "Create a pool and seed it from wallet balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := pubkeyFlag(cmd, "base")
			if err != nil {
				return err
			}
			quoteMint, err := pubkeyFlag(cmd, "quote")
			if err != nil {
				return err
			}
			riftAddr, err := optionalPubkeyFlag(cmd, "rift")
			if err != nil {
				return err
			}
			family, err := familyFlag(cmd)
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
				o, err := owner(cmd, a)
				if err != nil {
					return err
				}
				plan, err := a.Builder.CreatePool(ctx, orchestrator.CreatePoolIntent{
					Owner:       o,
					BaseMint:    base,
					QuoteMint:   quoteMint,
					BaseAmount:  amount,
					QuoteAmount: quoteAmount,
					Family:      family,
					ManualPrice: price,
					Rift:        riftAddr,
				})
				if err != nil {
					return err
				}
				return execute(ctx, cmd, a, plan)
			})
		},
	}
	cmd.Flags().String("base", "", "base mint")
	cmd.Flags().String("quote", "", "quote mint")
	cmd.Flags().Uint64("amount", 0, "raw base amount")
	cmd.Flags().Uint64("quote-amount", 0, "raw quote amount; 0 for single-sided")
	cmd.Flags().String("family", "constant_product", "bin_based or constant_product")
	cmd.Flags().String("price", "", "quote per base when the oracle cannot price both mints")
	cmd.Flags().String("rift", "", "wrap underlying of this rift first; base must be its mint")
	cmd.Flags().String("owner", "", "owner for --dry-run without a wallet")
	addRunFlags(cmd)
	return cmd
}

func withdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <pool>...",
		Short: "Withdraw liquidity from one or more pools",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pools := make([]solana.PublicKey, 0, len(args))
			for _, s := range args {
				pk, err := solana.PublicKeyFromBase58(s)
				if err != nil {
					return fmt.Errorf("pool %q: %w", s, err)
				}
				pools = append(pools, pk)
			}
			pctRaw, _ := cmd.Flags().GetString("percent")
			pct, err := decimal.NewFromString(pctRaw)
			if err != nil {
				return fmt.Errorf("--percent: %w", err)
			}
			posRaw, _ := cmd.Flags().GetStringSlice("position")
			mode := withdraw.ModePercentage
			var selected []solana.PublicKey
			for _, s := range posRaw {
				pk, err := solana.PublicKeyFromBase58(s)
				if err != nil {
					return fmt.Errorf("position %q: %w", s, err)
				}
				selected = append(selected, pk)
				mode = withdraw.ModeExplicit
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				o, err := owner(cmd, a)
				if err != nil {
					return err
				}
				plan, wp, err := a.Builder.Withdraw(ctx, orchestrator.WithdrawIntent{
					Owner:      o,
					Pools:      pools,
					Mode:       mode,
					Percentage: pct,
					Selected:   selected,
				})
				if err != nil {
					return err
				}
				if wp.Empty() {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to withdraw")
					return nil
				}
				return execute(ctx, cmd, a, plan)
			})
		},
	}
	cmd.Flags().String("percent", "100", "share of every position to withdraw")
	cmd.Flags().StringSlice("position", nil, "withdraw only these positions, in full")
	cmd.Flags().String("owner", "", "owner for --dry-run without a wallet")
	addRunFlags(cmd)
	return cmd
}

func claimFeesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim-fees <rift>",
		Short: "Distribute accrued rift fees to the partner and treasury",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			riftAddr, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("rift: %w", err)
			}
			amount, _ := cmd.Flags().GetUint64("amount")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				caller, err := owner(cmd, a)
				if err != nil {
					return err
				}
				plan, err := a.Builder.ClaimFees(ctx, orchestrator.ClaimFeesIntent{
					Caller: caller,
					Rift:   riftAddr,
					Amount: amount,
				})
				if err != nil {
					return err
				}
				return execute(ctx, cmd, a, plan)
			})
		},
	}
	cmd.Flags().Uint64("amount", 0, "raw amount of the caller's share; 0 claims all of it")
	cmd.Flags().String("owner", "", "caller for --dry-run without a wallet")
	addRunFlags(cmd)
	return cmd
}

func unwrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unwrap <rift>",
		Short: "Burn rift tokens for the underlying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			riftAddr, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("rift: %w", err)
			}
			amount, _ := cmd.Flags().GetUint64("amount")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				o, err := owner(cmd, a)
				if err != nil {
					return err
				}
				plan, err := a.Builder.Unwrap(ctx, orchestrator.UnwrapIntent{
					Owner:  o,
					Rift:   riftAddr,
					Amount: amount,
				})
				if err != nil {
					return err
				}
				return execute(ctx, cmd, a, plan)
			})
		},
	}
	cmd.Flags().Uint64("amount", 0, "raw rift token amount to burn")
	cmd.Flags().String("owner", "", "owner for --dry-run without a wallet")
	addRunFlags(cmd)
	return cmd
}
