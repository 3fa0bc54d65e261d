package gateway

import (
	"encoding/json"

	"github.com/xssnick/celer-pay-gateway/pkg/celer"
)

// KeyedValues is a per participant mapping flattened into two index aligned
// sequences, encoded as [[keys],[values]].
type KeyedValues[V any] struct {
	Keys   []celer.AccountID
	Values []V
}

func (k KeyedValues[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{k.Keys, k.Values})
}

// BalanceMap - accounts with their deposits and withdrawals, encoded as
// [[accounts],[deposits],[withdrawals]].
type BalanceMap struct {
	Accounts    []celer.AccountID
	Deposits    []celer.Balance
	Withdrawals []celer.Balance
}

func (b BalanceMap) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{b.Accounts, b.Deposits, b.Withdrawals})
}

// WithdrawIntent is encoded as [receiver, amount, deadline, seqNumHash].
type WithdrawIntent struct {
	Receiver   celer.AccountID
	Amount     celer.Balance
	Deadline   celer.BlockNumber
	SeqNumHash celer.Hash
}

func (w WithdrawIntent) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]any{w.Receiver, w.Amount, w.Deadline, w.SeqNumHash})
}

// MigrationInfo is encoded as
// [[accounts],[deposits],[withdrawals],[seqNums],[transferOuts],[pendingPayOuts]].
type MigrationInfo struct {
	Accounts       []celer.AccountID
	Deposits       []celer.Balance
	Withdrawals    []celer.Balance
	SeqNums        []celer.SeqNum
	TransferOuts   []celer.Balance
	PendingPayOuts []celer.Balance
}

func (m MigrationInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal([6]any{m.Accounts, m.Deposits, m.Withdrawals, m.SeqNums, m.TransferOuts, m.PendingPayOuts})
}

func asIs[T any](v T) T {
	return v
}

func shapeKeyed[V any](o celer.Option[[]celer.Peer[V]]) celer.Option[KeyedValues[V]] {
	return celer.MapOption(o, func(peers []celer.Peer[V]) KeyedValues[V] {
		kv := KeyedValues[V]{
			Keys:   make([]celer.AccountID, 0, len(peers)),
			Values: make([]V, 0, len(peers)),
		}
		for _, p := range peers {
			kv.Keys = append(kv.Keys, p.Account)
			kv.Values = append(kv.Values, p.Value)
		}
		return kv
	})
}

func shapeBalanceMap(o celer.Option[[]celer.Peer[celer.PeerFunds]]) celer.Option[BalanceMap] {
	return celer.MapOption(o, func(peers []celer.Peer[celer.PeerFunds]) BalanceMap {
		bm := BalanceMap{
			Accounts:    make([]celer.AccountID, 0, len(peers)),
			Deposits:    make([]celer.Balance, 0, len(peers)),
			Withdrawals: make([]celer.Balance, 0, len(peers)),
		}
		for _, p := range peers {
			bm.Accounts = append(bm.Accounts, p.Account)
			bm.Deposits = append(bm.Deposits, p.Value.Deposit)
			bm.Withdrawals = append(bm.Withdrawals, p.Value.Withdrawal)
		}
		return bm
	})
}

func shapeMigrationInfo(o celer.Option[[]celer.Peer[celer.MigrationPeer]]) celer.Option[MigrationInfo] {
	return celer.MapOption(o, func(peers []celer.Peer[celer.MigrationPeer]) MigrationInfo {
		n := len(peers)
		mi := MigrationInfo{
			Accounts:       make([]celer.AccountID, 0, n),
			Deposits:       make([]celer.Balance, 0, n),
			Withdrawals:    make([]celer.Balance, 0, n),
			SeqNums:        make([]celer.SeqNum, 0, n),
			TransferOuts:   make([]celer.Balance, 0, n),
			PendingPayOuts: make([]celer.Balance, 0, n),
		}
		for _, p := range peers {
			mi.Accounts = append(mi.Accounts, p.Account)
			mi.Deposits = append(mi.Deposits, p.Value.Deposit)
			mi.Withdrawals = append(mi.Withdrawals, p.Value.Withdrawal)
			mi.SeqNums = append(mi.SeqNums, p.Value.SeqNum)
			mi.TransferOuts = append(mi.TransferOuts, p.Value.TransferOut)
			mi.PendingPayOuts = append(mi.PendingPayOuts, p.Value.PendingPayOut)
		}
		return mi
	})
}

func shapeWithdrawIntent(o celer.Option[celer.WithdrawIntent]) celer.Option[WithdrawIntent] {
	return celer.MapOption(o, func(w celer.WithdrawIntent) WithdrawIntent {
		return WithdrawIntent(w)
	})
}

// shapeOwners keeps an existing but empty owner list encoded as [] rather than null.
func shapeOwners(o celer.Option[[]celer.AccountID]) celer.Option[[]celer.AccountID] {
	return celer.MapOption(o, func(owners []celer.AccountID) []celer.AccountID {
		return append(make([]celer.AccountID, 0, len(owners)), owners...)
	})
}
