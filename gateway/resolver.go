package gateway

import (
	"context"

	"github.com/xssnick/celer-pay-gateway/pkg/celer"
)

const msgResolveSnapshot = "Can't resolve snapshot"

type Resolver struct {
	src SnapshotSource
}

func NewResolver(src SnapshotSource) *Resolver {
	return &Resolver{src: src}
}

// Resolve returns the head at call time when at is nil, the exact snapshot otherwise.
func (r *Resolver) Resolve(ctx context.Context, at *celer.BlockNumber) (Snapshot, error) {
	var snap Snapshot
	var err error
	if at == nil {
		snap, err = r.src.Head(ctx)
	} else {
		snap, err = r.src.Snapshot(ctx, *at)
	}
	if err != nil {
		return Snapshot{}, Normalize(msgResolveSnapshot, err)
	}
	return snap, nil
}
