package rift

import "fmt"

// ErrorCodeOffset is the first custom error code of an Anchor program.
const ErrorCodeOffset = 6000

// ProgramError is one entry of the vault program error enum.
type ProgramError struct {
	Code    uint32
	Name    string
	Message string
}

func (e ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

// errorTable is indexed by code - ErrorCodeOffset.
var errorTable = [...]struct{ name, msg string }{
	{"InvalidAccountData", "Invalid account data"},
	{"InvalidPartnerFee", "Invalid partner fee (max 5%)"},
	{"InvalidTradingFee", "Invalid trading fee (max 1%)"},
	{"InvalidTransferFee", "Invalid transfer fee (must be 0.7%-1% = 70-100 basis points)"},
	{"InvalidRiftName", "Rift name must end with '_RIFT' or 'RIFT'"},
	{"NameTooLong", "Rift name too long (max 32 chars)"},
	{"InvalidVanityAddress", "Invalid vanity address - must end with 'rift'"},
	{"RebalanceTooSoon", "Rebalance called too soon"},
	{"OraclePriceTooStale", "Oracle price too stale"},
	{"InsufficientArbitrageOpportunity", "Insufficient arbitrage opportunity"},
	{"UnauthorizedClose", "Unauthorized to close this rift"},
	{"UnauthorizedAdmin", "Unauthorized admin action"},
	{"VaultNotEmpty", "Vault must be empty before closing"},
	{"InvalidStuckAccount", "Invalid stuck account - does not match expected PDA"},
	{"RiftAlreadyExists", "Rift already exists - not a stuck account"},
	{"MathOverflow", "Math overflow"},
	{"InvalidAmount", "Invalid amount"},
	{"InvalidBackingRatio", "Invalid backing ratio"},
	{"UnauthorizedOracle", "Unauthorized oracle"},
	{"InvalidPrice", "Invalid price"},
	{"InvalidConfidence", "Invalid confidence"},
	{"InvalidFeeAmount", "Invalid fee amount"},
	{"InsufficientRentExemption", "Insufficient rent exemption for account creation"},
	{"InvalidProgramId", "Invalid program ID in cross-program invocation"},
	{"InvalidSeedComponent", "Invalid seed component in PDA derivation"},
	{"InvalidPartnerVault", "Partner vault owner or mint validation failed"},
	{"InsufficientAccounts", "Insufficient accounts provided"},
	{"InvalidInputData", "Invalid input data provided"},
	{"OracleRegistryStale", "Oracle registry is stale"},
	{"EmptyOracleRegistry", "Oracle registry is empty"},
	{"ReentrancyDetected", "Reentrancy attack detected"},
	{"VaultNotInitialized", "Vault not properly initialized"},
	{"AmountTooLarge", "Amount too large for safe processing"},
	{"AmountTooSmall", "Amount too small for fee calculation"},
	{"InvalidVaultAuthority", "Invalid vault authority provided"},
	{"BackingRatioTooLarge", "Backing ratio too large"},
	{"FeeTooSmall", "Fee too small for amount"},
	{"MintAmountTooSmall", "Mint amount too small"},
	{"MintAmountTooLarge", "Mint amount too large"},
	{"InvalidOraclePrice", "Invalid oracle price"},
	{"OraclePriceTooLarge", "Oracle price too large"},
	{"InsufficientFees", "Insufficient fees available - would drain backing reserves"},
	{"InvalidOracleInterval", "Invalid oracle interval"},
	{"InvalidRebalanceThreshold", "Invalid rebalance threshold"},
	{"InsufficientOracles", "Insufficient oracle responses"},
	{"MissingPartnerVault", "Partner vault account is missing"},
	{"InsufficientFunds", "Insufficient funds in vault"},
	{"InvalidVanitySeed", "Invalid vanity seed - must be 32 bytes or less"},
	{"InvalidMintPDA", "Invalid mint PDA - derivation mismatch"},
	{"InvalidMintBump", "Invalid mint bump - derivation mismatch"},
	{"InvalidPublicKey", "Invalid public key format"},
	{"UnauthorizedOracleUpdate", "Unauthorized oracle update - only rift creator can update oracle prices"},
	{"InvalidOracleAccount", "Invalid oracle account - insufficient size or invalid owner"},
	{"InvalidMintAuthority", "Invalid mint authority - mint authority does not match expected PDA"},
	{"InvalidTimestamp", "Invalid timestamp - too far in future or past"},
	{"InvalidOracleParameters", "Invalid oracle parameters - interval or threshold out of bounds"},
	{"Unauthorized", "Unauthorized access"},
	{"InvalidByteSlice", "Invalid byte slice conversion"},
	{"InvalidMint", "Invalid mint - does not match rift state"},
	{"InvalidVault", "Invalid vault - does not match rift state"},
	{"UnauthorizedTokenAccount", "Unauthorized token account - owner mismatch"},
	{"OracleAccountNotSet", "Oracle account not set - must call set_oracle_accounts first"},
	{"SlippageExceeded", "Slippage exceeded - actual output less than minimum required"},
	{"OracleAccountMismatch", "Oracle account mismatch - provided account does not match stored oracle account"},
	{"InvalidOracleOwner", "Invalid oracle owner - oracle account not owned by Switchboard program"},
	{"InvalidOracleData", "Invalid oracle data - account data too small or malformed"},
	{"OraclePriceStale", "Oracle price stale - price data older than maximum allowed age"},
	{"OracleConfidenceTooLow", "Oracle confidence too low - confidence interval too large relative to price"},
	{"InvalidOracleExponent", "Invalid oracle exponent - exponent outside acceptable range"},
	{"InvalidTokenAccount", "Invalid token account data"},
	{"TreasuryNotSet", "Treasury wallet not set - must set treasury first"},
	{"InvalidTreasuryVault", "Invalid treasury vault - owner does not match treasury wallet"},
	{"OracleUpdateTooFrequent", "Oracle update too frequent - must wait at least 1 hour between manual updates"},
	{"OracleCumulativeDriftTooLarge", "Oracle cumulative drift too large - max 30% drift within 7 days"},
	{"OraclePriceChangeTooLarge", "Oracle price change too large - max 10% change per update"},
	{"LiquidityPoolNotInitialized", "Liquidity pool not initialized - staking requires active pool"},
	{"InvalidStakingVault", "Invalid staking vault - must be program-controlled PDA"},
	{"FeesVaultNotEmpty", "Fees vault is not empty - distribute fees before closing rift"},
	{"WithheldVaultNotEmpty", "Withheld vault is not empty - distribute withheld fees before closing rift"},
	{"InvalidFeesVault", "Invalid fees vault - does not match rift state"},
	{"InvalidWithheldVault", "Invalid withheld vault - does not match rift state"},
	{"ExcessiveTransferFee", "Underlying token transfer fee exceeds 1% - transaction rejected for user protection"},
	{"BackingRatioTooStale", "Backing ratio too stale - last rebalance was more than 24 hours ago"},
	{"InvalidPDA", "Invalid PDA derivation - computed address does not match provided account"},
	{"UnsafeUnderlyingMint", "Unsafe underlying mint - mint has freeze authority that could lock vault funds"},
	{"TransferFeeConfigMismatch", "Transfer fee config mismatch - actual on-chain fee does not match parameter"},
	{"RiftClosed", "Rift has been closed by admin"},
	{"PartnerWalletNotSet", "Partner wallet not set"},
	{"NoOracleChangePending", "No oracle change pending"},
	{"OracleChangeDelayNotMet", "Oracle change delay not met (24h required)"},
	{"MissingPartnerAccount", "Partner account is required when partner_amount > 0"},
	{"InvalidRift", "Invalid rift - closed_rift_pubkey must match rift account key"},
	{"InvalidVanitySeedLength", "Invalid vanity seed length - seed_len exceeds vanity_seed array bounds"},
}

// LookupError maps a custom program error code to its name and message.
func LookupError(code uint32) (ProgramError, bool) {
	if code < ErrorCodeOffset || code-ErrorCodeOffset >= uint32(len(errorTable)) {
		return ProgramError{}, false
	}
	e := errorTable[code-ErrorCodeOffset]
	return ProgramError{Code: code, Name: e.name, Message: e.msg}, true
}

// Codes the orchestrator reacts to.
const (
	CodeInvalidTransferFee    uint32 = ErrorCodeOffset + 3
	CodeMathOverflow          uint32 = ErrorCodeOffset + 15
	CodeInvalidAmount         uint32 = ErrorCodeOffset + 16
	CodeInsufficientFees      uint32 = ErrorCodeOffset + 41
	CodeInsufficientFunds     uint32 = ErrorCodeOffset + 46
	CodeUnauthorized          uint32 = ErrorCodeOffset + 56
	CodeSlippageExceeded      uint32 = ErrorCodeOffset + 62
	CodeTreasuryNotSet        uint32 = ErrorCodeOffset + 70
	CodeExcessiveTransferFee  uint32 = ErrorCodeOffset + 81
	CodeRiftClosed            uint32 = ErrorCodeOffset + 86
	CodePartnerWalletNotSet   uint32 = ErrorCodeOffset + 87
	CodeMissingPartnerAccount uint32 = ErrorCodeOffset + 90
)
