package gateway

import (
	"context"

	"github.com/xssnick/celer-pay-gateway/pkg/celer"
)

// Snapshot - handle of an immutable point in the ledger history
type Snapshot struct {
	Number celer.BlockNumber
}

// SnapshotSource maps snapshot indexes to handles.
type SnapshotSource interface {
	// Head returns the newest committed snapshot at call time.
	Head(ctx context.Context) (Snapshot, error)
	// Snapshot returns the exact retained snapshot, or ErrSnapshotNotFound.
	Snapshot(ctx context.Context, number celer.BlockNumber) (Snapshot, error)
}

// Accessor is the versioned query capability of the ledger state machine.
// Every method reads at the given snapshot only, implementations must be
// safe for concurrent use and resolve runtime version differences internally.
type Accessor interface {
	LedgerID(ctx context.Context, at Snapshot) (celer.AccountID, error)
	WalletRegistryID(ctx context.Context, at Snapshot) (celer.AccountID, error)
	PoolID(ctx context.Context, at Snapshot) (celer.AccountID, error)
	PayResolverID(ctx context.Context, at Snapshot) (celer.AccountID, error)

	SettleFinalizedTime(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[celer.BlockNumber], error)
	ChannelStatus(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.ChannelStatus, error)
	CooperativeWithdrawSeqNum(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[celer.SeqNum], error)
	BalanceMap(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.PeerFunds]], error)
	StateSeqNumMap(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.SeqNum]], error)
	TransferOutMap(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.Balance]], error)
	NextPayIDListHashMap(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.Hash]], error)
	LastPayResolveDeadlineMap(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.BlockNumber]], error)
	PendingPayOutMap(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.Balance]], error)
	WithdrawIntent(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[celer.WithdrawIntent], error)
	ChannelStatusNum(ctx context.Context, at Snapshot, status uint8) (celer.Option[uint64], error)
	BalanceLimit(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[celer.Balance], error)
	BalanceLimitsEnabled(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[bool], error)
	PeersMigrationInfo(ctx context.Context, at Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.MigrationPeer]], error)

	WalletOwners(ctx context.Context, at Snapshot, id celer.WalletID) (celer.Option[[]celer.AccountID], error)
	WalletBalance(ctx context.Context, at Snapshot, id celer.WalletID) (celer.Option[celer.Balance], error)

	PoolBalance(ctx context.Context, at Snapshot, owner celer.AccountID) (celer.Option[celer.Balance], error)
	Allowance(ctx context.Context, at Snapshot, owner, spender celer.AccountID) (celer.Option[celer.Balance], error)

	CalculatePayID(ctx context.Context, at Snapshot, payHash celer.PayHash) (celer.Hash, error)
}
