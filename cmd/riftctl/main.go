package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/aman-zulfiqar/rift-liquidity/internal/app"
	"github.com/aman-zulfiqar/rift-liquidity/internal/config"
	"github.com/aman-zulfiqar/rift-liquidity/internal/logger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/orchestrator"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "riftctl",
		Short:        "Plan and submit rift liquidity operations",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc-url", "", "Solana RPC URL")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("commitment", "confirmed", "commitment level")

	root.AddCommand(
		classifyCmd(),
		quoteCmd(),
		createQuoteCmd(),
		statusCmd(),
		launchCmd(),
		addCmd(),
		createPoolCmd(),
		withdrawCmd(),
		claimFeesCmd(),
		unwrapCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads configuration from the command's flags and runs fn with the
// assembled components. SIGINT cancels ctx.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		Output:     cfg.LogOutput,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
	if cfg.LogOutput == "" || cfg.LogOutput == "stdout" {
		// stdout carries command output
		log.SetOutput(cmd.ErrOrStderr())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pubkeyFlag(cmd *cobra.Command, name string) (solana.PublicKey, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("--%s is required", name)
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %w", name, err)
	}
	return pk, nil
}

func optionalPubkeyFlag(cmd *cobra.Command, name string) (*solana.PublicKey, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, nil
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &pk, nil
}

func decimalFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &d, nil
}

// execute prints the plan and, unless --dry-run is set, runs it with progress
// lines on stdout.
func execute(ctx context.Context, cmd *cobra.Command, a *app.App, plan *orchestrator.TransactionPlan) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, plan.String())
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		return printJSON(out, plan.Summary)
	}

	runner, err := a.RequireRunner()
	if err != nil {
		return err
	}
	res, err := runner.Run(ctx, plan, func(p orchestrator.Progress) {
		fmt.Fprintf(out, "[%d/%d] %s\n", p.Current, p.Total, p.Status)
	})
	if res != nil {
		for _, rec := range res.Records {
			fmt.Fprintf(out, "  %s %s\n", rec.Status, rec.Signature)
		}
	}
	return err
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "print the plan without signing")
	cmd.Flags().String("wallet-private-key", "", "signing key (base58 or keygen JSON)")
	cmd.Flags().String("bundle-url", "", "bundle relay JSON-RPC URL")
}
