package leveldb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/xssnick/celer-pay-gateway/gateway"
	"github.com/xssnick/celer-pay-gateway/gateway/db"
)

type DB struct {
	path string
	_db  *leveldb.DB

	mx sync.Mutex
}

type Tx struct {
	*leveldb.Snapshot
	batchWrap
}

type batchWrap struct {
	b *leveldb.Batch
}

func (b batchWrap) Put(key, value []byte, wo *opt.WriteOptions) error {
	if !wo.GetSync() {
		panic("must be sync write")
	}

	b.b.Put(key, value)
	return nil
}

func (b batchWrap) Delete(key []byte, wo *opt.WriteOptions) error {
	if !wo.GetSync() {
		panic("must be sync write")
	}

	b.b.Delete(key)
	return nil
}

type executor interface {
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
	Get(key []byte, ro *opt.ReadOptions) (value []byte, err error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

// NewDB opens or creates the database at path, isNew reports the latter.
func NewDB(path string) (*DB, bool, error) {
	isNew := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		isNew = true
	}

	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, false, err
	}

	return &DB{
		path: path,
		_db:  ldb,
	}, isNew, nil
}

// NewMemDB keeps everything in memory, the content is lost on Close.
func NewMemDB() (*DB, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &DB{_db: ldb}, nil
}

func (d *DB) Close() {
	_ = d._db.Close()
}

type txKeyType struct{}

var txKey = txKeyType{}

// Transaction - kinda ACID achievement using leveldb
func (d *DB) Transaction(ctx context.Context, f func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*Tx); ok {
		// already inside tx
		return f(ctx)
	}

	// lock gives us consistency
	d.mx.Lock()
	defer d.mx.Unlock()

	// snapshot gives us kinda reads isolation
	snap, err := d._db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("failed to get db snapshot: %w", err)
	}
	defer snap.Release()

	tx := &Tx{
		batchWrap: batchWrap{new(leveldb.Batch)},
		Snapshot:  snap,
	}

	if err := f(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}

	// batches are atomic, and durable when sync = true
	if err := d._db.Write(tx.batchWrap.b, &opt.WriteOptions{
		Sync: true,
	}); err != nil {
		return fmt.Errorf("failed to write batch to db: %w", err)
	}
	return nil
}

func (d *DB) GetExecutor(ctx context.Context) db.Executor {
	if tx, ok := ctx.Value(txKey).(*Tx); ok {
		return execWrap{tx}
	}
	return execWrap{d._db}
}

type execWrap struct {
	e executor
}

func (x execWrap) Put(key, value []byte) error {
	return x.e.Put(key, value, &opt.WriteOptions{Sync: true})
}

func (x execWrap) Delete(key []byte) error {
	return x.e.Delete(key, &opt.WriteOptions{Sync: true})
}

func (x execWrap) Get(key []byte) ([]byte, error) {
	v, err := x.e.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, gateway.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (x execWrap) NewRangeIterator(start, limit []byte) db.Iterator {
	return x.e.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
}
