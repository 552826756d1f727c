package constants

import "time"

// Cache keys
const (
	CacheKeyBalancePrefix  = "balance:"
	CacheKeyOverrideIndex  = "overrides:index"
	CacheKeyOverridePrefix = "overrides:"
	CacheKeyPricePrefix    = "price:"

	PriceCacheTTL = 15 * time.Second

	// Plan progress events are published here as JSON.
	ChannelPlanProgress = "plans:progress"
)

// Confirmation polling
const (
	ConfirmInterval    = 1 * time.Second
	ConfirmMaxAttempts = 30
	// Individual getSignatureStatuses calls are bounded separately from the overall loop.
	ConfirmRequestTimeout = 5 * time.Second
)

// Balance reconciliation
const (
	BalanceFreshnessWindow = 30 * time.Second
	BalanceRecheckAttempts = 5
	BalanceRecheckDelay    = 2 * time.Second
)

// Fees and tolerances
const (
	BpsDenominator = 10_000
	PpmDenominator = 1_000_000

	// Used when a fee-bearing mint's TransferFeeConfig cannot be read.
	FallbackHaircutBps = 100

	DistributionMarginPpm  = 10
	StaleQuoteToleranceBps = 100
	DefaultSlippageBps     = 100

	// Wrap fee charged by the vault program when the rift account does not exist yet.
	DefaultWrapFeeBps = 30

	MinRiftTransferFeeBps = 70
	MaxRiftTransferFeeBps = 100
)

// Pool creation
const (
	DefaultPositionWidth = 69
	DefaultDLMMBinStep   = 100
	DefaultCPFeeBps      = 25
)

// Bundle relay
const (
	DefaultBundleTipLamports = 10_000
	MaxBundleTransactions    = 5
)

// Program addresses. Token programs come from solana-go.
const (
	RiftProgram = "29JgMGWZ28CSF7JLStKFp8xb4BZyf7QitG5CHcfRBYoR"
	DLMMProgram = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"
	DAMMProgram = "cpamdpZCGKUy5JxQXB4dcpGPiikHawvSWAd6mEn1sGG"
)

// Jito tip accounts; one is picked per bundle.
var BundleTipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
}
