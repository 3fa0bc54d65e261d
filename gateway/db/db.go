package db

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xssnick/celer-pay-gateway/gateway"
	"github.com/xssnick/celer-pay-gateway/pkg/celer"
)

type Iterator interface {
	Last() bool
	Prev() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

type Executor interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Get(key []byte) (value []byte, err error)
	// NewRangeIterator iterates keys in [start, limit).
	NewRangeIterator(start, limit []byte) Iterator
}

type Storage interface {
	Transaction(ctx context.Context, f func(ctx context.Context) error) error
	GetExecutor(ctx context.Context) Executor
	Close()
}

// DB keeps every ledger entity as a list of versions keyed by the block
// which wrote them. Versions at or below the head are never rewritten, so
// reads at a retained snapshot need no locking.
type DB struct {
	storage Storage

	// serializes writers only
	mx sync.Mutex
}

// BlockOffset - head or retention floor record
type BlockOffset struct {
	Number    celer.BlockNumber `json:"number"`
	UpdatedAt time.Time         `json:"updated_at"`
}

const (
	prefixChannel   = "ch:"
	prefixWallet    = "wl:"
	prefixPool      = "pb:"
	prefixAllowance = "pa:"
	prefixStatusNum = "sn:"
	prefixSystem    = "sys:"
	prefixRuntime   = "rt:"

	keyHead  = "bo:head"
	keyFloor = "bo:floor"
)

func NewDB(storage Storage) *DB {
	return &DB{
		storage: storage,
	}
}

func (d *DB) Close() {
	d.storage.Close()
}

func entityKey(prefix string, parts ...[]byte) []byte {
	key := []byte(prefix)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func versionKey(entity []byte, block celer.BlockNumber) []byte {
	key := make([]byte, len(entity)+8)
	copy(key, entity)
	binary.BigEndian.PutUint64(key[len(entity):], block)
	return key
}

// getAt returns the newest version of the entity written at or before block,
// ok is false when there is none or it is a tombstone.
func (d *DB) getAt(ctx context.Context, entity []byte, block celer.BlockNumber) ([]byte, bool, error) {
	limit := versionKey(entity, block+1)
	if block == ^celer.BlockNumber(0) {
		limit = append(versionKey(entity, block), 0xFF)
	}

	it := d.storage.GetExecutor(ctx).NewRangeIterator(versionKey(entity, 0), limit)
	defer it.Release()

	if !it.Last() {
		if err := it.Error(); err != nil {
			return nil, false, fmt.Errorf("failed to iterate versions: %w", err)
		}
		return nil, false, nil
	}

	if len(it.Value()) == 0 {
		return nil, false, nil
	}
	return append([]byte{}, it.Value()...), true, nil
}

func getJSON[T any](ctx context.Context, d *DB, entity []byte, block celer.BlockNumber) (celer.Option[T], error) {
	data, ok, err := d.getAt(ctx, entity, block)
	if err != nil || !ok {
		return celer.None[T](), err
	}

	var v T
	if err = json.Unmarshal(data, &v); err != nil {
		return celer.None[T](), fmt.Errorf("failed to decode json data: %w", err)
	}
	return celer.Some(v), nil
}

// putVersion writes the entity version of block, nil value writes a tombstone.
func putVersion(tx Executor, entity []byte, block celer.BlockNumber, value any) error {
	var data []byte
	if value != nil {
		var err error
		if data, err = json.Marshal(value); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
	}

	if err := tx.Put(versionKey(entity, block), data); err != nil {
		return fmt.Errorf("failed to put: %w", err)
	}
	return nil
}

func (d *DB) getOffset(ctx context.Context, key string) (*BlockOffset, error) {
	data, err := d.storage.GetExecutor(ctx).Get([]byte(key))
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, gateway.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get from db: %w", err)
	}

	var off *BlockOffset
	if err = json.Unmarshal(data, &off); err != nil {
		return nil, fmt.Errorf("failed to decode json data: %w", err)
	}
	return off, nil
}

func (d *DB) setOffset(ctx context.Context, key string, number celer.BlockNumber) error {
	data, err := json.Marshal(BlockOffset{
		Number:    number,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}

	if err = d.storage.GetExecutor(ctx).Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to put: %w", err)
	}
	return nil
}

// Head implements gateway.SnapshotSource.
func (d *DB) Head(ctx context.Context) (gateway.Snapshot, error) {
	head, err := d.getOffset(ctx, keyHead)
	if err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			return gateway.Snapshot{}, fmt.Errorf("ledger has no committed blocks: %w", gateway.ErrSnapshotNotFound)
		}
		return gateway.Snapshot{}, fmt.Errorf("failed to load head: %w", err)
	}
	return gateway.Snapshot{Number: head.Number}, nil
}

// Snapshot implements gateway.SnapshotSource.
func (d *DB) Snapshot(ctx context.Context, number celer.BlockNumber) (gateway.Snapshot, error) {
	head, err := d.Head(ctx)
	if err != nil {
		return gateway.Snapshot{}, err
	}

	var floor celer.BlockNumber
	off, err := d.getOffset(ctx, keyFloor)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		return gateway.Snapshot{}, fmt.Errorf("failed to load retention floor: %w", err)
	}
	if off != nil {
		floor = off.Number
	}

	if number > head.Number || number < floor {
		return gateway.Snapshot{}, fmt.Errorf("snapshot %d is not retained, available %d..%d: %w",
			number, floor, head.Number, gateway.ErrSnapshotNotFound)
	}
	return gateway.Snapshot{Number: number}, nil
}
