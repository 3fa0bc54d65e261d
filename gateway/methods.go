package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/xssnick/celer-pay-gateway/pkg/celer"
)

type params struct {
	method string
	raw    []json.RawMessage
}

type entry struct {
	keys int
	call func(ctx context.Context, q *Query, p params, at *celer.BlockNumber) (any, error)
}

var catalogue = map[string]entry{
	mLedgerID.name:         noKeys((*Query).LedgerID),
	mWalletRegistryID.name: noKeys((*Query).WalletRegistryID),
	mPoolID.name:           noKeys((*Query).PoolID),
	mPayResolverID.name:    noKeys((*Query).PayResolverID),

	mSettleFinalizedTime.name:       byHash((*Query).SettleFinalizedTime),
	mChannelStatus.name:             byHash((*Query).ChannelStatus),
	mCooperativeWithdrawSeqNum.name: byHash((*Query).CooperativeWithdrawSeqNum),
	mBalanceMap.name:                byHash((*Query).BalanceMap),
	mStateSeqNumMap.name:            byHash((*Query).StateSeqNumMap),
	mTransferOutMap.name:            byHash((*Query).TransferOutMap),
	mNextPayIDListHashMap.name:      byHash((*Query).NextPayIDListHashMap),
	mLastPayResolveDeadlineMap.name: byHash((*Query).LastPayResolveDeadlineMap),
	mPendingPayOutMap.name:          byHash((*Query).PendingPayOutMap),
	mWithdrawIntent.name:            byHash((*Query).WithdrawIntent),
	mBalanceLimit.name:              byHash((*Query).BalanceLimit),
	mBalanceLimitsEnabled.name:      byHash((*Query).BalanceLimitsEnabled),
	mPeersMigrationInfo.name:        byHash((*Query).PeersMigrationInfo),
	mChannelStatusNum.name:          byStatus((*Query).ChannelStatusNum),

	mWalletOwners.name:  byHash((*Query).WalletOwners),
	mWalletBalance.name: byHash((*Query).WalletBalance),

	mPoolBalance.name: byAccount((*Query).PoolBalance),
	mAllowance.name:   byAccounts((*Query).Allowance),

	mCalculatePayID.name: byHash((*Query).CalculatePayID),

	// spelling served by the first releases, kept for existing clients
	"celerPaymodule_getSettleFinalizedTime": byHash((*Query).SettleFinalizedTime),
}

// Methods lists every name accepted by Call.
func Methods() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call dispatches a query by its stable name. Params are positional: the
// method keys first, then an optional snapshot number.
func (q *Query) Call(ctx context.Context, name string, raw []json.RawMessage) (any, error) {
	e, ok := catalogue[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, name)
	}

	p := params{method: name, raw: raw}
	if len(raw) < e.keys || len(raw) > e.keys+1 {
		return nil, &ParamsError{Method: name, Reason: fmt.Sprintf("expected %d or %d params, got %d", e.keys, e.keys+1, len(raw))}
	}

	at, err := p.snapshot(e.keys)
	if err != nil {
		return nil, err
	}
	return e.call(ctx, q, p, at)
}

func wrap[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func noKeys[T any](f func(*Query, context.Context, *celer.BlockNumber) (T, error)) entry {
	return entry{keys: 0, call: func(ctx context.Context, q *Query, _ params, at *celer.BlockNumber) (any, error) {
		return wrap(f(q, ctx, at))
	}}
}

func byHash[T any](f func(*Query, context.Context, celer.Hash, *celer.BlockNumber) (T, error)) entry {
	return entry{keys: 1, call: func(ctx context.Context, q *Query, p params, at *celer.BlockNumber) (any, error) {
		id, err := decodeKey[celer.Hash](p, 0)
		if err != nil {
			return nil, err
		}
		return wrap(f(q, ctx, id, at))
	}}
}

func byStatus[T any](f func(*Query, context.Context, uint8, *celer.BlockNumber) (T, error)) entry {
	return entry{keys: 1, call: func(ctx context.Context, q *Query, p params, at *celer.BlockNumber) (any, error) {
		status, err := decodeKey[uint8](p, 0)
		if err != nil {
			return nil, err
		}
		return wrap(f(q, ctx, status, at))
	}}
}

func byAccount[T any](f func(*Query, context.Context, celer.AccountID, *celer.BlockNumber) (T, error)) entry {
	return entry{keys: 1, call: func(ctx context.Context, q *Query, p params, at *celer.BlockNumber) (any, error) {
		acc, err := decodeKey[celer.AccountID](p, 0)
		if err != nil {
			return nil, err
		}
		return wrap(f(q, ctx, acc, at))
	}}
}

func byAccounts[T any](f func(*Query, context.Context, celer.AccountID, celer.AccountID, *celer.BlockNumber) (T, error)) entry {
	return entry{keys: 2, call: func(ctx context.Context, q *Query, p params, at *celer.BlockNumber) (any, error) {
		a, err := decodeKey[celer.AccountID](p, 0)
		if err != nil {
			return nil, err
		}
		b, err := decodeKey[celer.AccountID](p, 1)
		if err != nil {
			return nil, err
		}
		return wrap(f(q, ctx, a, b, at))
	}}
}

func decodeKey[T any](p params, i int) (T, error) {
	var v T
	raw := bytes.TrimSpace(p.raw[i])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return v, &ParamsError{Method: p.method, Reason: fmt.Sprintf("param %d is required", i)}
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &ParamsError{Method: p.method, Reason: fmt.Sprintf("param %d: %v", i, err)}
	}
	return v, nil
}

// snapshot accepts a missing param, null, a JSON number or a 0x quantity.
func (p params) snapshot(i int) (*celer.BlockNumber, error) {
	if len(p.raw) <= i {
		return nil, nil
	}

	raw := bytes.TrimSpace(p.raw[i])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var n uint64
	if raw[0] == '"' {
		var qty hexutil.Uint64
		if err := json.Unmarshal(raw, &qty); err != nil {
			return nil, &ParamsError{Method: p.method, Reason: fmt.Sprintf("snapshot: %v", err)}
		}
		n = uint64(qty)
	} else if err := json.Unmarshal(raw, &n); err != nil {
		return nil, &ParamsError{Method: p.method, Reason: fmt.Sprintf("snapshot: %v", err)}
	}
	return &n, nil
}
