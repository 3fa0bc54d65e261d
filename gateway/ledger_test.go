package gateway

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/xssnick/celer-pay-gateway/pkg/celer"
)

var _ Accessor = (*memLedger)(nil)
var _ SnapshotSource = (*memLedger)(nil)

type ledgerState struct {
	system    celer.SystemAccounts
	channels  map[celer.ChannelID]celer.Channel
	wallets   map[celer.WalletID]celer.Wallet
	pool      map[celer.AccountID]celer.Balance
	allowance map[[2]celer.AccountID]celer.Balance
	statusNum map[uint8]uint64
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		system: celer.SystemAccounts{
			Ledger:         celer.AccountID{0x01},
			WalletRegistry: celer.AccountID{0x02},
			Pool:           celer.AccountID{0x03},
			PayResolver:    celer.AccountID{0x04},
		},
		channels:  map[celer.ChannelID]celer.Channel{},
		wallets:   map[celer.WalletID]celer.Wallet{},
		pool:      map[celer.AccountID]celer.Balance{},
		allowance: map[[2]celer.AccountID]celer.Balance{},
		statusNum: map[uint8]uint64{},
	}
}

// memLedger - in memory ledger, every committed state is kept as a snapshot
type memLedger struct {
	mx     sync.Mutex
	head   celer.BlockNumber
	states map[celer.BlockNumber]*ledgerState

	// fail is returned by every accessor call when set
	fail  error
	reads int
}

func newMemLedger() *memLedger {
	return &memLedger{states: map[celer.BlockNumber]*ledgerState{}}
}

func (l *memLedger) commit(number celer.BlockNumber, st *ledgerState) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.states[number] = st
	if number > l.head {
		l.head = number
	}
}

func (l *memLedger) Head(_ context.Context) (Snapshot, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if len(l.states) == 0 {
		return Snapshot{}, fmt.Errorf("empty ledger: %w", ErrSnapshotNotFound)
	}
	return Snapshot{Number: l.head}, nil
}

func (l *memLedger) Snapshot(_ context.Context, number celer.BlockNumber) (Snapshot, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.states[number] == nil {
		return Snapshot{}, fmt.Errorf("snapshot %d: %w", number, ErrSnapshotNotFound)
	}
	return Snapshot{Number: number}, nil
}

func (l *memLedger) at(s Snapshot) (*ledgerState, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.reads++
	if l.fail != nil {
		return nil, l.fail
	}
	return l.states[s.Number], nil
}

func channelPeers[V any](l *memLedger, s Snapshot, id celer.ChannelID, f func(p *celer.PeerProfile) V) (celer.Option[[]celer.Peer[V]], error) {
	st, err := l.at(s)
	if err != nil {
		return celer.None[[]celer.Peer[V]](), err
	}
	ch, ok := st.channels[id]
	if !ok {
		return celer.None[[]celer.Peer[V]](), nil
	}
	return celer.Some(celer.PeersOf(&ch, f)), nil
}

func channelField[V any](l *memLedger, s Snapshot, id celer.ChannelID, f func(ch *celer.Channel) celer.Option[V]) (celer.Option[V], error) {
	st, err := l.at(s)
	if err != nil {
		return celer.None[V](), err
	}
	ch, ok := st.channels[id]
	if !ok {
		return celer.None[V](), nil
	}
	return f(&ch), nil
}

func (l *memLedger) LedgerID(_ context.Context, s Snapshot) (celer.AccountID, error) {
	st, err := l.at(s)
	if err != nil {
		return celer.AccountID{}, err
	}
	return st.system.Ledger, nil
}

func (l *memLedger) WalletRegistryID(_ context.Context, s Snapshot) (celer.AccountID, error) {
	st, err := l.at(s)
	if err != nil {
		return celer.AccountID{}, err
	}
	return st.system.WalletRegistry, nil
}

func (l *memLedger) PoolID(_ context.Context, s Snapshot) (celer.AccountID, error) {
	st, err := l.at(s)
	if err != nil {
		return celer.AccountID{}, err
	}
	return st.system.Pool, nil
}

func (l *memLedger) PayResolverID(_ context.Context, s Snapshot) (celer.AccountID, error) {
	st, err := l.at(s)
	if err != nil {
		return celer.AccountID{}, err
	}
	return st.system.PayResolver, nil
}

func (l *memLedger) SettleFinalizedTime(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[celer.BlockNumber], error) {
	return channelField(l, s, id, func(ch *celer.Channel) celer.Option[celer.BlockNumber] { return ch.SettleFinalizedTime })
}

func (l *memLedger) ChannelStatus(_ context.Context, s Snapshot, id celer.ChannelID) (celer.ChannelStatus, error) {
	st, err := l.at(s)
	if err != nil {
		return 0, err
	}
	return st.channels[id].Status, nil
}

func (l *memLedger) CooperativeWithdrawSeqNum(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[celer.SeqNum], error) {
	return channelField(l, s, id, func(ch *celer.Channel) celer.Option[celer.SeqNum] { return ch.CooperativeWithdrawSeqNum })
}

func (l *memLedger) BalanceMap(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.PeerFunds]], error) {
	return channelPeers(l, s, id, func(p *celer.PeerProfile) celer.PeerFunds {
		return celer.PeerFunds{Deposit: p.Deposit, Withdrawal: p.Withdrawal}
	})
}

func (l *memLedger) StateSeqNumMap(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.SeqNum]], error) {
	return channelPeers(l, s, id, func(p *celer.PeerProfile) celer.SeqNum { return p.SeqNum })
}

func (l *memLedger) TransferOutMap(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.Balance]], error) {
	return channelPeers(l, s, id, func(p *celer.PeerProfile) celer.Balance { return p.TransferOut })
}

func (l *memLedger) NextPayIDListHashMap(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.Hash]], error) {
	return channelPeers(l, s, id, func(p *celer.PeerProfile) celer.Hash { return p.NextPayIDListHash })
}

func (l *memLedger) LastPayResolveDeadlineMap(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.BlockNumber]], error) {
	return channelPeers(l, s, id, func(p *celer.PeerProfile) celer.BlockNumber { return p.LastPayResolveDeadline })
}

func (l *memLedger) PendingPayOutMap(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.Balance]], error) {
	return channelPeers(l, s, id, func(p *celer.PeerProfile) celer.Balance { return p.PendingPayOut })
}

func (l *memLedger) WithdrawIntent(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[celer.WithdrawIntent], error) {
	return channelField(l, s, id, func(ch *celer.Channel) celer.Option[celer.WithdrawIntent] { return ch.WithdrawIntent })
}

func (l *memLedger) ChannelStatusNum(_ context.Context, s Snapshot, status uint8) (celer.Option[uint64], error) {
	st, err := l.at(s)
	if err != nil {
		return celer.None[uint64](), err
	}
	n, ok := st.statusNum[status]
	if !ok {
		return celer.None[uint64](), nil
	}
	return celer.Some(n), nil
}

func (l *memLedger) BalanceLimit(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[celer.Balance], error) {
	return channelField(l, s, id, func(ch *celer.Channel) celer.Option[celer.Balance] { return ch.BalanceLimit })
}

func (l *memLedger) BalanceLimitsEnabled(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[bool], error) {
	return channelField(l, s, id, func(ch *celer.Channel) celer.Option[bool] { return celer.Some(ch.BalanceLimitsEnabled) })
}

func (l *memLedger) PeersMigrationInfo(_ context.Context, s Snapshot, id celer.ChannelID) (celer.Option[[]celer.Peer[celer.MigrationPeer]], error) {
	return channelPeers(l, s, id, func(p *celer.PeerProfile) celer.MigrationPeer {
		return celer.MigrationPeer{
			Deposit:       p.Deposit,
			Withdrawal:    p.Withdrawal,
			SeqNum:        p.SeqNum,
			TransferOut:   p.TransferOut,
			PendingPayOut: p.PendingPayOut,
		}
	})
}

func (l *memLedger) WalletOwners(_ context.Context, s Snapshot, id celer.WalletID) (celer.Option[[]celer.AccountID], error) {
	st, err := l.at(s)
	if err != nil {
		return celer.None[[]celer.AccountID](), err
	}
	w, ok := st.wallets[id]
	if !ok {
		return celer.None[[]celer.AccountID](), nil
	}
	return celer.Some(w.Owners), nil
}

func (l *memLedger) WalletBalance(_ context.Context, s Snapshot, id celer.WalletID) (celer.Option[celer.Balance], error) {
	st, err := l.at(s)
	if err != nil {
		return celer.None[celer.Balance](), err
	}
	w, ok := st.wallets[id]
	if !ok {
		return celer.None[celer.Balance](), nil
	}
	return celer.Some(w.Balance), nil
}

func (l *memLedger) PoolBalance(_ context.Context, s Snapshot, owner celer.AccountID) (celer.Option[celer.Balance], error) {
	st, err := l.at(s)
	if err != nil {
		return celer.None[celer.Balance](), err
	}
	b, ok := st.pool[owner]
	if !ok {
		return celer.None[celer.Balance](), nil
	}
	return celer.Some(b), nil
}

func (l *memLedger) Allowance(_ context.Context, s Snapshot, owner, spender celer.AccountID) (celer.Option[celer.Balance], error) {
	st, err := l.at(s)
	if err != nil {
		return celer.None[celer.Balance](), err
	}
	b, ok := st.allowance[[2]celer.AccountID{owner, spender}]
	if !ok {
		return celer.None[celer.Balance](), nil
	}
	return celer.Some(b), nil
}

func (l *memLedger) CalculatePayID(_ context.Context, s Snapshot, payHash celer.PayHash) (celer.Hash, error) {
	st, err := l.at(s)
	if err != nil {
		return celer.Hash{}, err
	}
	return sha256.Sum256(append(payHash[:], st.system.PayResolver[:]...)), nil
}
