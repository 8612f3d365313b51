package models

// Token is the projection of a protocol-level token, "PLT" (spec.md §3
// "Token").
type Token struct {
	Index    int64
	TokenID  string
	Decimals int32
	Issuer   string

	TotalSupply            int64
	CumulativeEventCount    int64
	CumulativeTransferCount int64
}

// TokenUpdateKind enumerates the sub-type of a TokenUpdate transaction
// (spec.md §3 "Transaction", supplemented per SPEC_FULL.md §3).
type TokenUpdateKind string

const (
	TokenUpdateMint         TokenUpdateKind = "Mint"
	TokenUpdateBurn         TokenUpdateKind = "Burn"
	TokenUpdateTransfer     TokenUpdateKind = "Transfer"
	TokenUpdateModuleUpdate TokenUpdateKind = "ModuleUpdate"
)
