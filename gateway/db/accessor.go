package db

import (
	"context"
	"fmt"

	"github.com/xssnick/celer-pay-gateway/gateway"
	"github.com/xssnick/celer-pay-gateway/pkg/celer"
	"golang.org/x/crypto/blake2b"
)

var _ gateway.Accessor = (*DB)(nil)
var _ gateway.SnapshotSource = (*DB)(nil)

func (d *DB) system(ctx context.Context, at gateway.Snapshot) (celer.SystemAccounts, error) {
	sys, err := getJSON[celer.SystemAccounts](ctx, d, entityKey(prefixSystem), at.Number)
	if err != nil {
		return celer.SystemAccounts{}, fmt.Errorf("failed to load system accounts: %w", err)
	}

	s, ok := sys.Get()
	if !ok {
		return celer.SystemAccounts{}, fmt.Errorf("system accounts are not set at %d: %w", at.Number, gateway.ErrNotFound)
	}
	return s, nil
}

func (d *DB) LedgerID(ctx context.Context, at gateway.Snapshot) (celer.AccountID, error) {
	s, err := d.system(ctx, at)
	return s.Ledger, err
}

func (d *DB) WalletRegistryID(ctx context.Context, at gateway.Snapshot) (celer.AccountID, error) {
	s, err := d.system(ctx, at)
	return s.WalletRegistry, err
}

func (d *DB) PoolID(ctx context.Context, at gateway.Snapshot) (celer.AccountID, error) {
	s, err := d.system(ctx, at)
	return s.Pool, err
}

func (d *DB) PayResolverID(ctx context.Context, at gateway.Snapshot) (celer.AccountID, error) {
	s, err := d.system(ctx, at)
	return s.PayResolver, err
}

func (d *DB) channel(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[celer.Channel], error) {
	ch, err := getJSON[celer.Channel](ctx, d, entityKey(prefixChannel, id[:]), at.Number)
	if err != nil {
		return ch, fmt.Errorf("failed to load channel %s at %d: %w", id, at.Number, err)
	}
	return ch, nil
}

// fromChannel projects an existing channel through f, absent channels give None.
func fromChannel[V any](ctx context.Context, d *DB, at gateway.Snapshot, id celer.ChannelID, f func(ch *celer.Channel) celer.Option[V]) (celer.Option[V], error) {
	ch, err := d.channel(ctx, at, id)
	if err != nil {
		return celer.None[V](), err
	}

	c, ok := ch.Get()
	if !ok {
		return celer.None[V](), nil
	}
	return f(&c), nil
}

func peersOf[V any](f func(p *celer.PeerProfile) V) func(ch *celer.Channel) celer.Option[[]celer.Peer[V]] {
	return func(ch *celer.Channel) celer.Option[[]celer.Peer[V]] {
		return celer.Some(celer.PeersOf(ch, f))
	}
}

func (d *DB) SettleFinalizedTime(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[celer.BlockNumber], error) {
	return fromChannel(ctx, d, at, id, func(ch *celer.Channel) celer.Option[celer.BlockNumber] {
		return ch.SettleFinalizedTime
	})
}

func (d *DB) ChannelStatus(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.ChannelStatus, error) {
	ch, err := d.channel(ctx, at, id)
	if err != nil {
		return 0, err
	}

	if c, ok := ch.Get(); ok {
		return c.Status, nil
	}
	return celer.ChannelUninitialized, nil
}

func (d *DB) CooperativeWithdrawSeqNum(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[celer.SeqNum], error) {
	return fromChannel(ctx, d, at, id, func(ch *celer.Channel) celer.Option[celer.SeqNum] {
		return ch.CooperativeWithdrawSeqNum
	})
}

func (d *DB) BalanceMap(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.PeerFunds]], error) {
	return fromChannel(ctx, d, at, id, peersOf(func(p *celer.PeerProfile) celer.PeerFunds {
		return celer.PeerFunds{Deposit: p.Deposit, Withdrawal: p.Withdrawal}
	}))
}

func (d *DB) StateSeqNumMap(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.SeqNum]], error) {
	return fromChannel(ctx, d, at, id, peersOf(func(p *celer.PeerProfile) celer.SeqNum {
		return p.SeqNum
	}))
}

func (d *DB) TransferOutMap(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.Balance]], error) {
	return fromChannel(ctx, d, at, id, peersOf(func(p *celer.PeerProfile) celer.Balance {
		return p.TransferOut
	}))
}

func (d *DB) NextPayIDListHashMap(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.Hash]], error) {
	return fromChannel(ctx, d, at, id, peersOf(func(p *celer.PeerProfile) celer.Hash {
		return p.NextPayIDListHash
	}))
}

func (d *DB) LastPayResolveDeadlineMap(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.BlockNumber]], error) {
	return fromChannel(ctx, d, at, id, peersOf(func(p *celer.PeerProfile) celer.BlockNumber {
		return p.LastPayResolveDeadline
	}))
}

func (d *DB) PendingPayOutMap(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.Balance]], error) {
	return fromChannel(ctx, d, at, id, peersOf(func(p *celer.PeerProfile) celer.Balance {
		return p.PendingPayOut
	}))
}

func (d *DB) WithdrawIntent(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[celer.WithdrawIntent], error) {
	return fromChannel(ctx, d, at, id, func(ch *celer.Channel) celer.Option[celer.WithdrawIntent] {
		return ch.WithdrawIntent
	})
}

// ChannelStatusNum gives None for codes which are not a channel status and
// for statuses no channel has ever entered.
func (d *DB) ChannelStatusNum(ctx context.Context, at gateway.Snapshot, status uint8) (celer.Option[uint64], error) {
	if !celer.ChannelStatus(status).Valid() {
		return celer.None[uint64](), nil
	}

	num, err := getJSON[uint64](ctx, d, entityKey(prefixStatusNum, []byte{status}), at.Number)
	if err != nil {
		return num, fmt.Errorf("failed to load channel status num: %w", err)
	}
	return num, nil
}

func (d *DB) BalanceLimit(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[celer.Balance], error) {
	if err := d.require(ctx, at, featureBalanceLimits); err != nil {
		return celer.None[celer.Balance](), err
	}
	return fromChannel(ctx, d, at, id, func(ch *celer.Channel) celer.Option[celer.Balance] {
		return ch.BalanceLimit
	})
}

func (d *DB) BalanceLimitsEnabled(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[bool], error) {
	if err := d.require(ctx, at, featureBalanceLimits); err != nil {
		return celer.None[bool](), err
	}
	return fromChannel(ctx, d, at, id, func(ch *celer.Channel) celer.Option[bool] {
		return celer.Some(ch.BalanceLimitsEnabled)
	})
}

func (d *DB) PeersMigrationInfo(ctx context.Context, at gateway.Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.MigrationPeer]], error) {
	if err := d.require(ctx, at, featureMigration); err != nil {
		return celer.None[[]celer.Peer[celer.MigrationPeer]](), err
	}
	return fromChannel(ctx, d, at, id, peersOf(func(p *celer.PeerProfile) celer.MigrationPeer {
		return celer.MigrationPeer{
			Deposit:       p.Deposit,
			Withdrawal:    p.Withdrawal,
			SeqNum:        p.SeqNum,
			TransferOut:   p.TransferOut,
			PendingPayOut: p.PendingPayOut,
		}
	}))
}

func (d *DB) wallet(ctx context.Context, at gateway.Snapshot, id celer.WalletID) (celer.Option[celer.Wallet], error) {
	w, err := getJSON[celer.Wallet](ctx, d, entityKey(prefixWallet, id[:]), at.Number)
	if err != nil {
		return w, fmt.Errorf("failed to load wallet %s at %d: %w", id, at.Number, err)
	}
	return w, nil
}

func (d *DB) WalletOwners(ctx context.Context, at gateway.Snapshot, id celer.WalletID) (celer.Option[[]celer.AccountID], error) {
	w, err := d.wallet(ctx, at, id)
	if err != nil {
		return celer.None[[]celer.AccountID](), err
	}
	return celer.MapOption(w, func(w celer.Wallet) []celer.AccountID {
		return w.Owners
	}), nil
}

func (d *DB) WalletBalance(ctx context.Context, at gateway.Snapshot, id celer.WalletID) (celer.Option[celer.Balance], error) {
	w, err := d.wallet(ctx, at, id)
	if err != nil {
		return celer.None[celer.Balance](), err
	}
	return celer.MapOption(w, func(w celer.Wallet) celer.Balance {
		return w.Balance
	}), nil
}

func (d *DB) PoolBalance(ctx context.Context, at gateway.Snapshot, owner celer.AccountID) (celer.Option[celer.Balance], error) {
	bal, err := getJSON[celer.Balance](ctx, d, entityKey(prefixPool, owner[:]), at.Number)
	if err != nil {
		return bal, fmt.Errorf("failed to load pool balance of %s: %w", owner, err)
	}
	return bal, nil
}

func (d *DB) Allowance(ctx context.Context, at gateway.Snapshot, owner, spender celer.AccountID) (celer.Option[celer.Balance], error) {
	amt, err := getJSON[celer.Balance](ctx, d, entityKey(prefixAllowance, owner[:], spender[:]), at.Number)
	if err != nil {
		return amt, fmt.Errorf("failed to load allowance of %s for %s: %w", owner, spender, err)
	}
	return amt, nil
}

// CalculatePayID is blake2b-256 of the pay hash followed by the pay resolver id.
func (d *DB) CalculatePayID(ctx context.Context, at gateway.Snapshot, payHash celer.PayHash) (celer.Hash, error) {
	resolver, err := d.PayResolverID(ctx, at)
	if err != nil {
		return celer.Hash{}, err
	}

	buf := make([]byte, 0, len(payHash)+len(resolver))
	buf = append(buf, payHash[:]...)
	buf = append(buf, resolver[:]...)
	return blake2b.Sum256(buf), nil
}
