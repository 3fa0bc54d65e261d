package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/xssnick/celer-pay-gateway/gateway"
	"github.com/xssnick/celer-pay-gateway/pkg/celer"
	"github.com/xssnick/celer-pay-gateway/pkg/log"
)

// Block - state changes committed by the ledger at one block. Nil map values
// remove the entity.
type Block struct {
	Number celer.BlockNumber `json:"number"`

	// RuntimeVersion is kept from the previous block when zero.
	RuntimeVersion RuntimeVersion `json:"runtime_version,omitempty"`

	System       *celer.SystemAccounts              `json:"system,omitempty"`
	Channels     map[celer.ChannelID]*celer.Channel `json:"channels,omitempty"`
	Wallets      map[celer.WalletID]*celer.Wallet   `json:"wallets,omitempty"`
	PoolBalances map[celer.AccountID]*celer.Balance `json:"pool_balances,omitempty"`
	Allowances   []AllowanceUpdate                  `json:"allowances,omitempty"`
}

type AllowanceUpdate struct {
	Owner   celer.AccountID `json:"owner"`
	Spender celer.AccountID `json:"spender"`
	Amount  *celer.Balance  `json:"amount"`
}

// ApplyBlock appends the block on top of the head in one batch. It is the
// ingestion path of the ledger node, the gateway itself never writes.
func (d *DB) ApplyBlock(ctx context.Context, b *Block) error {
	d.mx.Lock()
	defer d.mx.Unlock()

	return d.storage.Transaction(ctx, func(ctx context.Context) error {
		tx := d.storage.GetExecutor(ctx)

		var prev *gateway.Snapshot
		head, err := d.getOffset(ctx, keyHead)
		switch {
		case errors.Is(err, gateway.ErrNotFound):
			if b.System == nil {
				return fmt.Errorf("first block %d must set system accounts", b.Number)
			}
			if b.RuntimeVersion == 0 {
				b.RuntimeVersion = LatestRuntimeVersion
			}
			// nothing exists below the first block
			if err = d.setOffset(ctx, keyFloor, b.Number); err != nil {
				return fmt.Errorf("failed to set retention floor: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load head: %w", err)
		default:
			if b.Number != head.Number+1 {
				return fmt.Errorf("block %d does not extend head %d", b.Number, head.Number)
			}
			prev = &gateway.Snapshot{Number: head.Number}
		}

		if b.RuntimeVersion != 0 {
			if err = putVersion(tx, entityKey(prefixRuntime), b.Number, b.RuntimeVersion); err != nil {
				return err
			}
		}
		if b.System != nil {
			if err = putVersion(tx, entityKey(prefixSystem), b.Number, b.System); err != nil {
				return err
			}
		}

		statusDelta := map[celer.ChannelStatus]int64{}
		for id, ch := range b.Channels {
			if prev != nil {
				old, err := d.channel(ctx, *prev, id)
				if err != nil {
					return err
				}
				if o, ok := old.Get(); ok {
					statusDelta[o.Status]--
				}
			}
			if ch != nil {
				statusDelta[ch.Status]++
			}

			if err = putVersion(tx, entityKey(prefixChannel, id[:]), b.Number, nilable(ch)); err != nil {
				return err
			}
		}

		for status, delta := range statusDelta {
			if delta == 0 {
				continue
			}

			var cur uint64
			if prev != nil {
				c, err := getJSON[uint64](ctx, d, entityKey(prefixStatusNum, []byte{byte(status)}), prev.Number)
				if err != nil {
					return err
				}
				cur, _ = c.Get()
			}
			if delta < 0 && uint64(-delta) > cur {
				return fmt.Errorf("channel status %s count underflow", status)
			}
			if err = putVersion(tx, entityKey(prefixStatusNum, []byte{byte(status)}), b.Number, uint64(int64(cur)+delta)); err != nil {
				return err
			}
		}

		for id, w := range b.Wallets {
			if err = putVersion(tx, entityKey(prefixWallet, id[:]), b.Number, nilable(w)); err != nil {
				return err
			}
		}

		for owner, bal := range b.PoolBalances {
			if err = putVersion(tx, entityKey(prefixPool, owner[:]), b.Number, nilable(bal)); err != nil {
				return err
			}
		}

		for _, a := range b.Allowances {
			if err = putVersion(tx, entityKey(prefixAllowance, a.Owner[:], a.Spender[:]), b.Number, nilable(a.Amount)); err != nil {
				return err
			}
		}

		if err = d.setOffset(ctx, keyHead, b.Number); err != nil {
			return fmt.Errorf("failed to move head: %w", err)
		}

		log.Debug().Uint64("block", b.Number).Int("channels", len(b.Channels)).
			Int("wallets", len(b.Wallets)).Msg("block applied")
		return nil
	})
}

// nilable turns typed nil pointers into untyped nil, so they are stored as tombstones.
func nilable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return v
}

// Prune hides snapshots below the given block.
func (d *DB) Prune(ctx context.Context, below celer.BlockNumber) error {
	d.mx.Lock()
	defer d.mx.Unlock()

	head, err := d.Head(ctx)
	if err != nil {
		return err
	}
	if below > head.Number {
		return fmt.Errorf("cannot prune above head %d", head.Number)
	}

	off, err := d.getOffset(ctx, keyFloor)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return fmt.Errorf("failed to load retention floor: %w", err)
	}
	if off != nil && off.Number >= below {
		return nil
	}

	if err = d.setOffset(ctx, keyFloor, below); err != nil {
		return fmt.Errorf("failed to move retention floor: %w", err)
	}
	log.Info().Uint64("floor", below).Msg("snapshots pruned")
	return nil
}

func LoadGenesis(path string) (*Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis: %w", err)
	}

	var b Block
	if err = json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode genesis: %w", err)
	}
	return &b, nil
}

// Bootstrap applies the genesis block when the database is empty.
func (d *DB) Bootstrap(ctx context.Context, genesisPath string) error {
	if _, err := d.getOffset(ctx, keyHead); err == nil {
		return nil
	} else if !errors.Is(err, gateway.ErrNotFound) {
		return fmt.Errorf("failed to load head: %w", err)
	}

	if genesisPath == "" {
		log.Warn().Msg("database is empty and no genesis is configured, every query will fail until the first block")
		return nil
	}

	b, err := LoadGenesis(genesisPath)
	if err != nil {
		return err
	}
	if err = d.ApplyBlock(ctx, b); err != nil {
		return fmt.Errorf("failed to apply genesis: %w", err)
	}

	log.Info().Uint64("block", b.Number).Str("path", genesisPath).Msg("genesis applied")
	return nil
}
