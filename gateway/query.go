package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/xssnick/celer-pay-gateway/gateway/metrics"
	"github.com/xssnick/celer-pay-gateway/pkg/celer"
	"github.com/xssnick/celer-pay-gateway/pkg/log"
)

type method struct {
	name    string
	message string
}

var (
	mLedgerID                  = method{"celerPayModule_getCelerLedgerId", "Can't get celer ledger id"}
	mSettleFinalizedTime       = method{"celerPayModule_getSettleFinalizedTime", "Can't get settle finalized time"}
	mChannelStatus             = method{"celerPayModule_getChannelStatus", "Can't get channel status"}
	mCooperativeWithdrawSeqNum = method{"celerPayModule_getCooperativeWithdrawSeqNum", "Can't get cooperative withdraw sequence number"}
	mBalanceMap                = method{"celerPayModule_getBalanceMap", "Can't get balance map"}
	mStateSeqNumMap            = method{"celerPayModule_getStateSeqNumMap", "Can't get state sequence number map"}
	mTransferOutMap            = method{"celerPayModule_getTransferOutMap", "Can't get transfer out map"}
	mNextPayIDListHashMap      = method{"celerPayModule_getNextPayIdListHashMap", "Can't get next pay id list hash map"}
	mLastPayResolveDeadlineMap = method{"celerPayModule_getLastPayResolveDeadlineMap", "Can't get last pay resolve deadline map"}
	mPendingPayOutMap          = method{"celerPayModule_getPendingPayOutMap", "Can't get pending pay out map"}
	mWithdrawIntent            = method{"celerPayModule_getWithdrawIntent", "Can't get withdraw intent"}
	mChannelStatusNum          = method{"celerPayModule_getChannelStatusNum", "Can't get channel status num"}
	mBalanceLimit              = method{"celerPayModule_getBalanceLimit", "Can't get balance limit"}
	mBalanceLimitsEnabled      = method{"celerPayModule_getBalanceLimitsEnabled", "Can't get balance limits enabled"}
	mPeersMigrationInfo        = method{"celerPayModule_getPeersMigrationInfo", "Can't get peers migration info"}
	mWalletRegistryID          = method{"celerPayModule_getCelerWalletId", "Can't get celer wallet id"}
	mWalletOwners              = method{"celerPayModule_getWalletOwners", "Can't get wallet owners"}
	mWalletBalance             = method{"celerPayModule_getBalance", "Can't get wallet balance"}
	mPoolID                    = method{"celerPayModule_getPoolId", "Can't get pool id"}
	mPoolBalance               = method{"celerPayModule_balanceOf", "Can't get pool balance"}
	mAllowance                 = method{"celerPayModule_allowance", "Can't get allowed balance of spender"}
	mPayResolverID             = method{"celerPayModule_getPayResolverId", "Can't get pay resolver id"}
	mCalculatePayID            = method{"celerPayModule_calculatePayId", "Can't calculate pay id"}
)

// Query serves every ledger query against one resolved snapshot per call.
// It holds no mutable state and is safe for concurrent use.
type Query struct {
	resolver *Resolver
	state    Accessor
}

func NewQuery(src SnapshotSource, state Accessor) *Query {
	return &Query{
		resolver: NewResolver(src),
		state:    state,
	}
}

func run[R, S any](ctx context.Context, q *Query, m method, at *celer.BlockNumber,
	call func(ctx context.Context, snap Snapshot) (R, error), shape func(R) S) (S, error) {
	var res S
	tm := time.Now()

	snap, err := q.resolver.Resolve(ctx, at)
	if err != nil {
		q.reportFailure(m, at, err, tm)
		return res, err
	}
	if at == nil {
		metrics.SetHead(snap.Number)
	}

	raw, err := call(ctx, snap)
	if err != nil {
		nErr := Normalize(m.message, err)
		q.reportFailure(m, at, nErr, tm)
		return res, nErr
	}

	metrics.ObserveQuery(m.name, "ok", time.Since(tm))
	return shape(raw), nil
}

func (q *Query) reportFailure(m method, at *celer.BlockNumber, err error, tm time.Time) {
	kind := KindInternal
	var gErr *Error
	if errors.As(err, &gErr) {
		kind = gErr.Kind
	}
	metrics.ObserveQuery(m.name, kind.String(), time.Since(tm))

	ev := log.Debug().Str("method", m.name).Str("kind", kind.String()).Err(err)
	if at != nil {
		ev = ev.Uint64("at", *at)
	}
	ev.Msg("query failed")
}

func (q *Query) LedgerID(ctx context.Context, at *celer.BlockNumber) (celer.AccountID, error) {
	return run(ctx, q, mLedgerID, at, func(ctx context.Context, s Snapshot) (celer.AccountID, error) {
		return q.state.LedgerID(ctx, s)
	}, asIs[celer.AccountID])
}

func (q *Query) SettleFinalizedTime(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[celer.BlockNumber], error) {
	return run(ctx, q, mSettleFinalizedTime, at, func(ctx context.Context, s Snapshot) (celer.Option[celer.BlockNumber], error) {
		return q.state.SettleFinalizedTime(ctx, s, id)
	}, asIs[celer.Option[celer.BlockNumber]])
}

// ChannelStatus reports ChannelUninitialized for channels that do not exist.
func (q *Query) ChannelStatus(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.ChannelStatus, error) {
	return run(ctx, q, mChannelStatus, at, func(ctx context.Context, s Snapshot) (celer.ChannelStatus, error) {
		return q.state.ChannelStatus(ctx, s, id)
	}, asIs[celer.ChannelStatus])
}

func (q *Query) CooperativeWithdrawSeqNum(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[celer.SeqNum], error) {
	return run(ctx, q, mCooperativeWithdrawSeqNum, at, func(ctx context.Context, s Snapshot) (celer.Option[celer.SeqNum], error) {
		return q.state.CooperativeWithdrawSeqNum(ctx, s, id)
	}, asIs[celer.Option[celer.SeqNum]])
}

func (q *Query) BalanceMap(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[BalanceMap], error) {
	return run(ctx, q, mBalanceMap, at, func(ctx context.Context, s Snapshot) (celer.Option[[]celer.Peer[celer.PeerFunds]], error) {
		return q.state.BalanceMap(ctx, s, id)
	}, shapeBalanceMap)
}

func (q *Query) StateSeqNumMap(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[KeyedValues[celer.SeqNum]], error) {
	return run(ctx, q, mStateSeqNumMap, at, func(ctx context.Context, s Snapshot) (celer.Option[[]celer.Peer[celer.SeqNum]], error) {
		return q.state.StateSeqNumMap(ctx, s, id)
	}, shapeKeyed[celer.SeqNum])
}

func (q *Query) TransferOutMap(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[KeyedValues[celer.Balance]], error) {
	return run(ctx, q, mTransferOutMap, at, func(ctx context.Context, s Snapshot) (celer.Option[[]celer.Peer[celer.Balance]], error) {
		return q.state.TransferOutMap(ctx, s, id)
	}, shapeKeyed[celer.Balance])
}

func (q *Query) NextPayIDListHashMap(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[KeyedValues[celer.Hash]], error) {
	return run(ctx, q, mNextPayIDListHashMap, at, func(ctx context.Context, s Snapshot) (celer.Option[[]celer.Peer[celer.Hash]], error) {
		return q.state.NextPayIDListHashMap(ctx, s, id)
	}, shapeKeyed[celer.Hash])
}

func (q *Query) LastPayResolveDeadlineMap(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[KeyedValues[celer.BlockNumber]], error) {
	return run(ctx, q, mLastPayResolveDeadlineMap, at, func(ctx context.Context, s Snapshot) (celer.Option[[]celer.Peer[celer.BlockNumber]], error) {
		return q.state.LastPayResolveDeadlineMap(ctx, s, id)
	}, shapeKeyed[celer.BlockNumber])
}

func (q *Query) PendingPayOutMap(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[KeyedValues[celer.Balance]], error) {
	return run(ctx, q, mPendingPayOutMap, at, func(ctx context.Context, s Snapshot) (celer.Option[[]celer.Peer[celer.Balance]], error) {
		return q.state.PendingPayOutMap(ctx, s, id)
	}, shapeKeyed[celer.Balance])
}

func (q *Query) WithdrawIntent(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[WithdrawIntent], error) {
	return run(ctx, q, mWithdrawIntent, at, func(ctx context.Context, s Snapshot) (celer.Option[celer.WithdrawIntent], error) {
		return q.state.WithdrawIntent(ctx, s, id)
	}, shapeWithdrawIntent)
}

// ChannelStatusNum returns how many channels are in the given status,
// absent for codes that are not a channel status.
func (q *Query) ChannelStatusNum(ctx context.Context, status uint8, at *celer.BlockNumber) (celer.Option[uint64], error) {
	return run(ctx, q, mChannelStatusNum, at, func(ctx context.Context, s Snapshot) (celer.Option[uint64], error) {
		return q.state.ChannelStatusNum(ctx, s, status)
	}, asIs[celer.Option[uint64]])
}

func (q *Query) BalanceLimit(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[celer.Balance], error) {
	return run(ctx, q, mBalanceLimit, at, func(ctx context.Context, s Snapshot) (celer.Option[celer.Balance], error) {
		return q.state.BalanceLimit(ctx, s, id)
	}, asIs[celer.Option[celer.Balance]])
}

func (q *Query) BalanceLimitsEnabled(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[bool], error) {
	return run(ctx, q, mBalanceLimitsEnabled, at, func(ctx context.Context, s Snapshot) (celer.Option[bool], error) {
		return q.state.BalanceLimitsEnabled(ctx, s, id)
	}, asIs[celer.Option[bool]])
}

func (q *Query) PeersMigrationInfo(ctx context.Context, id celer.ChannelID, at *celer.BlockNumber) (celer.Option[MigrationInfo], error) {
	return run(ctx, q, mPeersMigrationInfo, at, func(ctx context.Context, s Snapshot) (celer.Option[[]celer.Peer[celer.MigrationPeer]], error) {
		return q.state.PeersMigrationInfo(ctx, s, id)
	}, shapeMigrationInfo)
}

func (q *Query) WalletRegistryID(ctx context.Context, at *celer.BlockNumber) (celer.AccountID, error) {
	return run(ctx, q, mWalletRegistryID, at, func(ctx context.Context, s Snapshot) (celer.AccountID, error) {
		return q.state.WalletRegistryID(ctx, s)
	}, asIs[celer.AccountID])
}

func (q *Query) WalletOwners(ctx context.Context, id celer.WalletID, at *celer.BlockNumber) (celer.Option[[]celer.AccountID], error) {
	return run(ctx, q, mWalletOwners, at, func(ctx context.Context, s Snapshot) (celer.Option[[]celer.AccountID], error) {
		return q.state.WalletOwners(ctx, s, id)
	}, shapeOwners)
}

func (q *Query) WalletBalance(ctx context.Context, id celer.WalletID, at *celer.BlockNumber) (celer.Option[celer.Balance], error) {
	return run(ctx, q, mWalletBalance, at, func(ctx context.Context, s Snapshot) (celer.Option[celer.Balance], error) {
		return q.state.WalletBalance(ctx, s, id)
	}, asIs[celer.Option[celer.Balance]])
}

func (q *Query) PoolID(ctx context.Context, at *celer.BlockNumber) (celer.AccountID, error) {
	return run(ctx, q, mPoolID, at, func(ctx context.Context, s Snapshot) (celer.AccountID, error) {
		return q.state.PoolID(ctx, s)
	}, asIs[celer.AccountID])
}

func (q *Query) PoolBalance(ctx context.Context, owner celer.AccountID, at *celer.BlockNumber) (celer.Option[celer.Balance], error) {
	return run(ctx, q, mPoolBalance, at, func(ctx context.Context, s Snapshot) (celer.Option[celer.Balance], error) {
		return q.state.PoolBalance(ctx, s, owner)
	}, asIs[celer.Option[celer.Balance]])
}

func (q *Query) Allowance(ctx context.Context, owner, spender celer.AccountID, at *celer.BlockNumber) (celer.Option[celer.Balance], error) {
	return run(ctx, q, mAllowance, at, func(ctx context.Context, s Snapshot) (celer.Option[celer.Balance], error) {
		return q.state.Allowance(ctx, s, owner, spender)
	}, asIs[celer.Option[celer.Balance]])
}

func (q *Query) PayResolverID(ctx context.Context, at *celer.BlockNumber) (celer.AccountID, error) {
	return run(ctx, q, mPayResolverID, at, func(ctx context.Context, s Snapshot) (celer.AccountID, error) {
		return q.state.PayResolverID(ctx, s)
	}, asIs[celer.AccountID])
}

// CalculatePayID derives the pay id from its hash, it is still resolved
// against a snapshot since the derivation binds the pay resolver id.
func (q *Query) CalculatePayID(ctx context.Context, payHash celer.PayHash, at *celer.BlockNumber) (celer.Hash, error) {
	return run(ctx, q, mCalculatePayID, at, func(ctx context.Context, s Snapshot) (celer.Hash, error) {
		return q.state.CalculatePayID(ctx, s, payHash)
	}, asIs[celer.Hash])
}
