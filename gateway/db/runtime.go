package db

import (
	"context"
	"fmt"

	"github.com/xssnick/celer-pay-gateway/gateway"
)

// RuntimeVersion - version of the ledger runtime which produced a block
type RuntimeVersion uint32

const (
	RuntimeV1 RuntimeVersion = 1
	// RuntimeV2 introduced balance limits and channel migration.
	RuntimeV2 RuntimeVersion = 2

	LatestRuntimeVersion = RuntimeV2
)

type feature struct {
	name  string
	since RuntimeVersion
}

var (
	featureBalanceLimits = feature{"balance limits", RuntimeV2}
	featureMigration     = feature{"peers migration", RuntimeV2}
)

func (d *DB) runtimeVersion(ctx context.Context, at gateway.Snapshot) (RuntimeVersion, error) {
	v, err := getJSON[RuntimeVersion](ctx, d, entityKey(prefixRuntime), at.Number)
	if err != nil {
		return 0, fmt.Errorf("failed to load runtime version: %w", err)
	}

	ver, ok := v.Get()
	if !ok {
		return 0, fmt.Errorf("runtime version is not recorded at %d: %w", at.Number, gateway.ErrNotFound)
	}
	return ver, nil
}

// require fails with gateway.ErrUnsupported when the runtime active at the
// snapshot predates the feature.
func (d *DB) require(ctx context.Context, at gateway.Snapshot, f feature) error {
	ver, err := d.runtimeVersion(ctx, at)
	if err != nil {
		return err
	}
	if ver < f.since {
		return fmt.Errorf("%w: %s needs runtime v%d, snapshot %d runs v%d",
			gateway.ErrUnsupported, f.name, f.since, at.Number, ver)
	}
	return nil
}
