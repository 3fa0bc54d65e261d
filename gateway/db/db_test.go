package db_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xssnick/celer-pay-gateway/gateway"
	"github.com/xssnick/celer-pay-gateway/gateway/db"
	"github.com/xssnick/celer-pay-gateway/gateway/db/leveldb"
	"github.com/xssnick/celer-pay-gateway/pkg/celer"
	"golang.org/x/crypto/blake2b"
)

var (
	alice = celer.AccountID{0xaa}
	bob   = celer.AccountID{0xbb}
	carol = celer.AccountID{0xcc}

	chA = celer.ChannelID{0xa1}
	chB = celer.ChannelID{0xb1}

	wallet = celer.WalletID{0xd1}

	system = celer.SystemAccounts{
		Ledger:         celer.AccountID{0x01},
		WalletRegistry: celer.AccountID{0x02},
		Pool:           celer.AccountID{0x03},
		PayResolver:    celer.AccountID{0x04},
	}
)

func newStore(t *testing.T) *db.DB {
	t.Helper()

	ldb, err := leveldb.NewMemDB()
	require.NoError(t, err)

	store := db.NewDB(ldb)
	t.Cleanup(store.Close)
	return store
}

func channel(status celer.ChannelStatus, aliceDeposit uint64) *celer.Channel {
	return &celer.Channel{
		Status:               status,
		BalanceLimitsEnabled: true,
		BalanceLimit:         celer.Some(celer.NewU128(500)),
		Peers: []celer.PeerProfile{
			{Account: alice, Deposit: celer.NewU128(aliceDeposit), SeqNum: celer.NewU128(1)},
			{Account: bob, Deposit: celer.NewU128(20), Withdrawal: celer.NewU128(4), SeqNum: celer.NewU128(2)},
		},
	}
}

func genesis(runtime db.RuntimeVersion) *db.Block {
	bal := celer.NewU128(100)
	allowed := celer.NewU128(7)
	return &db.Block{
		Number:         1,
		RuntimeVersion: runtime,
		System:         &system,
		Channels: map[celer.ChannelID]*celer.Channel{
			chA: channel(celer.ChannelOperable, 10),
			chB: channel(celer.ChannelOperable, 1),
		},
		Wallets: map[celer.WalletID]*celer.Wallet{
			wallet: {Owners: []celer.AccountID{alice, bob}, Balance: celer.NewU128(30)},
		},
		PoolBalances: map[celer.AccountID]*celer.Balance{
			alice: &bal,
		},
		Allowances: []db.AllowanceUpdate{
			{Owner: alice, Spender: carol, Amount: &allowed},
		},
	}
}

func snap(n celer.BlockNumber) gateway.Snapshot {
	return gateway.Snapshot{Number: n}
}

func TestEmptyStoreHasNoHead(t *testing.T) {
	store := newStore(t)

	_, err := store.Head(context.Background())
	require.ErrorIs(t, err, gateway.ErrSnapshotNotFound)

	err = store.ApplyBlock(context.Background(), &db.Block{Number: 1})
	require.Error(t, err, "first block without system accounts")
}

func TestVersionedReads(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ApplyBlock(ctx, genesis(0)))
	require.NoError(t, store.ApplyBlock(ctx, &db.Block{
		Number:   2,
		Channels: map[celer.ChannelID]*celer.Channel{chA: channel(celer.ChannelOperable, 15)},
	}))
	require.NoError(t, store.ApplyBlock(ctx, &db.Block{Number: 3}))

	head, err := store.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, celer.BlockNumber(3), head.Number)

	for at, want := range map[celer.BlockNumber]uint64{1: 10, 2: 15, 3: 15} {
		bm, err := store.BalanceMap(ctx, snap(at), chA)
		require.NoError(t, err)
		peers, ok := bm.Get()
		require.True(t, ok)
		require.Len(t, peers, 2)
		require.Equal(t, alice, peers[0].Account)
		require.Equal(t, celer.NewU128(want), peers[0].Value.Deposit, "at %d", at)
		require.Equal(t, celer.NewU128(4), peers[1].Value.Withdrawal)
	}

	id, err := store.LedgerID(ctx, snap(3))
	require.NoError(t, err)
	require.Equal(t, system.Ledger, id)

	owners, err := store.WalletOwners(ctx, snap(2), wallet)
	require.NoError(t, err)
	require.Equal(t, celer.Some([]celer.AccountID{alice, bob}), owners)

	bal, err := store.WalletBalance(ctx, snap(2), wallet)
	require.NoError(t, err)
	require.Equal(t, celer.Some(celer.NewU128(30)), bal)

	pool, err := store.PoolBalance(ctx, snap(3), alice)
	require.NoError(t, err)
	require.Equal(t, celer.Some(celer.NewU128(100)), pool)

	pool, err = store.PoolBalance(ctx, snap(3), bob)
	require.NoError(t, err)
	require.False(t, pool.IsSome())

	allowed, err := store.Allowance(ctx, snap(1), alice, carol)
	require.NoError(t, err)
	require.Equal(t, celer.Some(celer.NewU128(7)), allowed)

	allowed, err = store.Allowance(ctx, snap(1), carol, alice)
	require.NoError(t, err)
	require.False(t, allowed.IsSome())
}

func TestRemovedEntitiesAreAbsent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ApplyBlock(ctx, genesis(0)))
	require.NoError(t, store.ApplyBlock(ctx, &db.Block{
		Number:       2,
		Channels:     map[celer.ChannelID]*celer.Channel{chA: nil},
		Wallets:      map[celer.WalletID]*celer.Wallet{wallet: nil},
		PoolBalances: map[celer.AccountID]*celer.Balance{alice: nil},
		Allowances:   []db.AllowanceUpdate{{Owner: alice, Spender: carol}},
	}))

	bm, err := store.BalanceMap(ctx, snap(2), chA)
	require.NoError(t, err)
	require.False(t, bm.IsSome())

	st, err := store.ChannelStatus(ctx, snap(2), chA)
	require.NoError(t, err)
	require.Equal(t, celer.ChannelUninitialized, st)

	owners, err := store.WalletOwners(ctx, snap(2), wallet)
	require.NoError(t, err)
	require.False(t, owners.IsSome())

	pool, err := store.PoolBalance(ctx, snap(2), alice)
	require.NoError(t, err)
	require.False(t, pool.IsSome())

	allowed, err := store.Allowance(ctx, snap(2), alice, carol)
	require.NoError(t, err)
	require.False(t, allowed.IsSome())

	// older snapshot still sees them
	st, err = store.ChannelStatus(ctx, snap(1), chA)
	require.NoError(t, err)
	require.Equal(t, celer.ChannelOperable, st)
}

func TestChannelStatusNum(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ApplyBlock(ctx, genesis(0)))
	require.NoError(t, store.ApplyBlock(ctx, &db.Block{
		Number:   2,
		Channels: map[celer.ChannelID]*celer.Channel{chB: channel(celer.ChannelSettling, 1)},
	}))
	require.NoError(t, store.ApplyBlock(ctx, &db.Block{
		Number:   3,
		Channels: map[celer.ChannelID]*celer.Channel{chA: nil},
	}))

	count := func(at celer.BlockNumber, status celer.ChannelStatus) celer.Option[uint64] {
		n, err := store.ChannelStatusNum(ctx, snap(at), uint8(status))
		require.NoError(t, err)
		return n
	}

	require.Equal(t, celer.Some(uint64(2)), count(1, celer.ChannelOperable))
	require.False(t, count(1, celer.ChannelSettling).IsSome())

	require.Equal(t, celer.Some(uint64(1)), count(2, celer.ChannelOperable))
	require.Equal(t, celer.Some(uint64(1)), count(2, celer.ChannelSettling))

	require.Equal(t, celer.Some(uint64(0)), count(3, celer.ChannelOperable))
	require.False(t, count(3, celer.ChannelClosed).IsSome())
	require.False(t, count(3, celer.ChannelStatus(42)).IsSome())
}

func TestBlocksMustExtendHead(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ApplyBlock(ctx, genesis(0)))
	require.Error(t, store.ApplyBlock(ctx, &db.Block{Number: 3}))
	require.Error(t, store.ApplyBlock(ctx, &db.Block{Number: 1}))

	head, err := store.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, celer.BlockNumber(1), head.Number)
}

func TestSnapshotRetention(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ApplyBlock(ctx, genesis(0)))
	for n := celer.BlockNumber(2); n <= 4; n++ {
		require.NoError(t, store.ApplyBlock(ctx, &db.Block{Number: n}))
	}

	_, err := store.Snapshot(ctx, 5)
	require.ErrorIs(t, err, gateway.ErrSnapshotNotFound)

	s, err := store.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, celer.BlockNumber(1), s.Number)

	require.Error(t, store.Prune(ctx, 5))
	require.NoError(t, store.Prune(ctx, 3))
	require.NoError(t, store.Prune(ctx, 2), "lower floor is a no-op")

	_, err = store.Snapshot(ctx, 2)
	require.ErrorIs(t, err, gateway.ErrSnapshotNotFound)

	s, err = store.Snapshot(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, celer.BlockNumber(3), s.Number)

	// versions written below the floor are still visible above it
	bm, err := store.BalanceMap(ctx, s, chA)
	require.NoError(t, err)
	require.True(t, bm.IsSome())
}

func TestSnapshotsBeforeFirstBlock(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := genesis(0)
	first.Number = 5
	require.NoError(t, store.ApplyBlock(ctx, first))

	for _, n := range []celer.BlockNumber{0, 2, 4} {
		_, err := store.Snapshot(ctx, n)
		require.ErrorIs(t, err, gateway.ErrSnapshotNotFound, "block %d", n)
	}

	s, err := store.Snapshot(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, celer.BlockNumber(5), s.Number)

	// an accessor call would panic on the nil embedded interface
	q := gateway.NewQuery(store, struct{ gateway.Accessor }{})
	at := celer.BlockNumber(2)

	_, err = q.ChannelStatus(ctx, chA, &at)
	require.ErrorIs(t, err, gateway.ErrSnapshotNotFound)
	_, err = q.BalanceMap(ctx, chA, &at)
	require.ErrorIs(t, err, gateway.ErrSnapshotNotFound)

	zero := celer.BlockNumber(0)
	_, err = q.LedgerID(ctx, &zero)
	var gErr *gateway.Error
	require.ErrorAs(t, err, &gErr)
	require.Equal(t, "Can't resolve snapshot", gErr.Message)
	require.Equal(t, gateway.KindSnapshotUnavailable, gErr.Kind)

	require.NoError(t, store.Prune(ctx, 3), "floor below the first block is a no-op")
	_, err = store.Snapshot(ctx, 4)
	require.ErrorIs(t, err, gateway.ErrSnapshotNotFound)
}

func TestRuntimeVersionGatesQueries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ApplyBlock(ctx, genesis(db.RuntimeV1)))
	require.NoError(t, store.ApplyBlock(ctx, &db.Block{Number: 2, RuntimeVersion: db.RuntimeV2}))

	_, err := store.BalanceLimit(ctx, snap(1), chA)
	require.ErrorIs(t, err, gateway.ErrUnsupported)
	_, err = store.BalanceLimitsEnabled(ctx, snap(1), chA)
	require.ErrorIs(t, err, gateway.ErrUnsupported)
	_, err = store.PeersMigrationInfo(ctx, snap(1), chA)
	require.ErrorIs(t, err, gateway.ErrUnsupported)

	// v1 still serves everything else
	bm, err := store.BalanceMap(ctx, snap(1), chA)
	require.NoError(t, err)
	require.True(t, bm.IsSome())

	limit, err := store.BalanceLimit(ctx, snap(2), chA)
	require.NoError(t, err)
	require.Equal(t, celer.Some(celer.NewU128(500)), limit)

	enabled, err := store.BalanceLimitsEnabled(ctx, snap(2), chA)
	require.NoError(t, err)
	require.Equal(t, celer.Some(true), enabled)

	mi, err := store.PeersMigrationInfo(ctx, snap(2), chA)
	require.NoError(t, err)
	peers, _ := mi.Get()
	require.Len(t, peers, 2)
	require.Equal(t, celer.NewU128(2), peers[1].Value.SeqNum)

	q := gateway.NewQuery(store, store)
	at := celer.BlockNumber(1)
	_, err = q.BalanceLimit(ctx, chA, &at)
	var gErr *gateway.Error
	require.ErrorAs(t, err, &gErr)
	require.Equal(t, "Can't get balance limit", gErr.Message)
	require.Equal(t, gateway.ApplicationErrorCode, gErr.Code)
	require.Equal(t, gateway.KindUnsupported, gErr.Kind)
	require.ErrorIs(t, err, gateway.ErrUnsupported)
}

func TestCalculatePayID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.ApplyBlock(ctx, genesis(0)))
	moved := system
	moved.PayResolver = celer.AccountID{0x44}
	require.NoError(t, store.ApplyBlock(ctx, &db.Block{Number: 2, System: &moved}))

	payHash := celer.PayHash{0x99}
	want := blake2b.Sum256(append(payHash[:], system.PayResolver[:]...))

	id, err := store.CalculatePayID(ctx, snap(1), payHash)
	require.NoError(t, err)
	require.Equal(t, celer.Hash(want), id)

	again, err := store.CalculatePayID(ctx, snap(1), payHash)
	require.NoError(t, err)
	require.Equal(t, id, again)

	other, err := store.CalculatePayID(ctx, snap(2), payHash)
	require.NoError(t, err)
	require.NotEqual(t, id, other)
}

func TestQueryScenarios(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.ApplyBlock(ctx, genesis(0)))
	q := gateway.NewQuery(store, store)

	// status of a channel that was never created is not an error
	st, err := q.ChannelStatus(ctx, celer.ChannelID{0x77}, nil)
	require.NoError(t, err)
	require.Equal(t, celer.ChannelUninitialized, st)

	// balance map of a two party channel is three aligned sequences
	res, err := q.BalanceMap(ctx, chA, nil)
	require.NoError(t, err)
	bm, ok := res.Get()
	require.True(t, ok)
	require.Equal(t, []celer.AccountID{alice, bob}, bm.Accounts)
	require.Equal(t, []celer.Balance{celer.NewU128(10), celer.NewU128(20)}, bm.Deposits)
	require.Equal(t, []celer.Balance{celer.NewU128(0), celer.NewU128(4)}, bm.Withdrawals)

	// one past head cannot be resolved
	past := celer.BlockNumber(2)
	_, err = q.WalletOwners(ctx, wallet, &past)
	require.ErrorIs(t, err, gateway.ErrSnapshotNotFound)
	var gErr *gateway.Error
	require.ErrorAs(t, err, &gErr)
	require.Equal(t, gateway.KindSnapshotUnavailable, gErr.Kind)

	// pay id derivation is repeatable
	at := celer.BlockNumber(1)
	a, err := q.CalculatePayID(ctx, celer.PayHash{0x10}, &at)
	require.NoError(t, err)
	b, err := q.CalculatePayID(ctx, celer.PayHash{0x10}, &at)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	data, err := json.Marshal(genesis(0))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, data, 0600))

	store := newStore(t)
	require.NoError(t, store.Bootstrap(ctx, ""))
	_, err = store.Head(ctx)
	require.ErrorIs(t, err, gateway.ErrSnapshotNotFound)

	require.NoError(t, store.Bootstrap(ctx, path))
	require.NoError(t, store.Bootstrap(ctx, path), "second bootstrap keeps the db")

	head, err := store.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, celer.BlockNumber(1), head.Number)

	owners, err := store.WalletOwners(ctx, head, wallet)
	require.NoError(t, err)
	require.Equal(t, celer.Some([]celer.AccountID{alice, bob}), owners)

	limit, err := store.BalanceLimit(ctx, head, chB)
	require.NoError(t, err)
	require.Equal(t, celer.Some(celer.NewU128(500)), limit)

	_, err = db.LoadGenesis(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
