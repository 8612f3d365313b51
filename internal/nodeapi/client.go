// Package nodeapi models the streaming RPC surface the indexer consumes
// from one or more chain nodes (spec.md §6). Wire-level compatibility with
// the node's actual gRPC service is assumed; this package defines the
// typed Go contract the rest of the indexer programs against, and a
// concrete client built on google.golang.org/grpc plus a per-endpoint rate
// limiter and connection-concurrency limiter.
package nodeapi

import (
	"context"
	"time"
)

// BlockHash is a hex-encoded block hash, used as a map/set key throughout.
type BlockHash string

// AbsoluteHeight identifies a block by its absolute chain height.
type AbsoluteHeight uint64

// BlockIdentifier selects a block either by absolute height or "last
// finalized", mirroring the node RPC's block identifier union.
type BlockIdentifier struct {
	Height        *AbsoluteHeight
	LastFinalized bool
}

// AtHeight is a convenience constructor for BlockIdentifier.
func AtHeight(h uint64) BlockIdentifier {
	height := AbsoluteHeight(h)
	return BlockIdentifier{Height: &height}
}

// FinalizedBlockInfo is one element of the get_finalized_blocks stream.
type FinalizedBlockInfo struct {
	Height AbsoluteHeight
	Hash   BlockHash
}

// BlockInfo is the response of get_block_info, supplemented with
// certificate information for P8+ chains (get_block_certificates).
type BlockInfo struct {
	Hash                BlockHash
	ParentBlock         BlockHash
	LastFinalizedBlock  BlockHash
	SlotTime            time.Time
	BakerID             *uint64
	EraBlockHeight      uint64 // height since the current protocol's first block; 0 marks a protocol boundary
	ProtocolVersion     uint32
}

// QuorumCertificateSignatory identifies a validator that signed the quorum
// certificate of a block (P8+), used to clear PrimedForSuspension.
type QuorumCertificateSignatory struct {
	BakerID uint64
}

// BlockCertificates carries the P8+ certificate data needed for the
// suspension-priming sweep (spec.md §4.5).
type BlockCertificates struct {
	QuorumSignatories []QuorumCertificateSignatory
}

// Tokenomics is the response of get_tokenomics_info.
type Tokenomics struct {
	TotalAmount        uint64
	TotalStakedCapital *uint64 // nil on protocols that don't report this directly (spec.md §4.4)
}

// AccountBaker describes the staking side of get_account_info for an
// account that is a validator.
type AccountBaker struct {
	BakerID         uint64
	Staked          uint64
	RestakeEarnings bool
	PoolInfo        *BakerPoolInfo
}

// BakerPoolInfo is the pool-configuration subset of AccountBaker.
type BakerPoolInfo struct {
	OpenStatus              string
	MetadataURL             string
	TransactionCommission   uint32
	BakingCommission        uint32
	FinalizationCommission uint32
}

// AccountDelegation describes the delegation side of get_account_info for
// an account that delegates.
type AccountDelegation struct {
	StakedAmount     uint64
	RestakeEarnings  bool
	Target           *uint64 // nil means the passive pool
}

// AccountInfo is the response of get_account_info.
type AccountInfo struct {
	Index      uint64
	Address    string
	Amount     uint64
	Baker      *AccountBaker
	Delegation *AccountDelegation
}

// ChainParameters is the (partial) response of get_block_chain_parameters
// relevant to validator/delegation bound recomputation.
type ChainParameters struct {
	CapitalBoundPermille  uint32
	LeverageBoundNumerator int64
	LeverageBoundDenominator int64
}

// BlockItemSummary is one element of the get_block_transaction_events
// stream — the chain-level description of a single transaction.
type BlockItemSummary struct {
	Index      uint64
	Hash       string
	CcdCost    uint64
	EnergyCost uint64
	Sender     *string
	Effects    any // concrete union decoded by internal/indexer/preprocess
}

// SpecialEvent is one element of the get_block_special_events stream.
type SpecialEvent struct {
	Index uint64
	Kind  string
	Data  any
}

// BakerRewardPeriodInfo is one element of the get_bakers_reward_period
// stream (P4+; empty on older protocols per spec.md §9).
type BakerRewardPeriodInfo struct {
	BakerID        uint64
	EffectiveStake uint64
	Commission     BakerPoolInfo
}

// PassiveDelegatorRewardPeriodInfo is one element of the
// get_passive_delegators_reward_period stream (P4+).
type PassiveDelegatorRewardPeriodInfo struct {
	AccountIndex uint64
	StakedAmount uint64
}

// Module is the response of get_module_source.
type Module struct {
	Reference string
	WasmVersion uint32
	Source    []byte
}

// TokenInfo is the response of get_token_info.
type TokenInfo struct {
	TokenID  string
	Decimals int32
	Issuer   string
}

// Stream models a finite, non-restartable lazy sequence, per the §9
// redesign note on generators/streams: callers must drain it fully.
type Stream[T any] interface {
	Next(ctx context.Context) (T, bool, error)
	Close()
}

// Client is the full RPC surface the indexer depends on (spec.md §6). Each
// endpoint in the driver's pool holds one Client.
type Client interface {
	GetConsensusInfo(ctx context.Context) (ConsensusInfo, error)
	GetFinalizedBlocks(ctx context.Context, from AbsoluteHeight) (Stream[FinalizedBlockInfo], error)
	GetBlockInfo(ctx context.Context, id BlockIdentifier) (BlockInfo, error)
	GetBlockCertificates(ctx context.Context, id BlockIdentifier) (BlockCertificates, error)
	GetBlockChainParameters(ctx context.Context, id BlockIdentifier) (ChainParameters, error)
	GetBlockItems(ctx context.Context, id BlockIdentifier) ([][]byte, error)
	GetBlockTransactionEvents(ctx context.Context, id BlockIdentifier) (Stream[BlockItemSummary], error)
	GetBlockSpecialEvents(ctx context.Context, id BlockIdentifier) (Stream[SpecialEvent], error)
	GetTokenomicsInfo(ctx context.Context, id BlockIdentifier) (Tokenomics, error)
	GetBakerList(ctx context.Context, id BlockIdentifier) (Stream[uint64], error)
	GetAccountInfo(ctx context.Context, addr string, id BlockIdentifier) (AccountInfo, error)
	GetAccountList(ctx context.Context, id BlockIdentifier) (Stream[string], error)
	GetModuleSource(ctx context.Context, ref string, id BlockIdentifier) (Module, error)
	GetBakersRewardPeriod(ctx context.Context, id BlockIdentifier) (Stream[BakerRewardPeriodInfo], error)
	GetPassiveDelegatorsRewardPeriod(ctx context.Context, id BlockIdentifier) (Stream[PassiveDelegatorRewardPeriodInfo], error)
	GetPoolDelegatorsRewardPeriod(ctx context.Context, bakerID uint64, id BlockIdentifier) (Stream[PassiveDelegatorRewardPeriodInfo], error)
	GetPoolInfo(ctx context.Context, bakerID uint64, id BlockIdentifier) (BakerPoolInfo, error)
	GetTokenList(ctx context.Context, id BlockIdentifier) ([]string, error)
	GetTokenInfo(ctx context.Context, tokenID string, id BlockIdentifier) (TokenInfo, error)

	Close() error
}

// ConsensusInfo is the response of get_consensus_info, used by the pipeline
// driver's on_connect hook to verify genesis compatibility.
type ConsensusInfo struct {
	GenesisBlock     BlockHash
	LastFinalized    FinalizedBlockInfo
	ProtocolVersion  uint32
}
