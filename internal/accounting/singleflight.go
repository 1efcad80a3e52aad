package accounting

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

type buildResult struct {
	rows []ledger.Row
	hit  bool
}

// singleflightBuild collapses concurrent builds of the same key. Callers whose
// context ends stop waiting; the shared build keeps the first caller's context.
func singleflightBuild(ctx context.Context, group *singleflight.Group, key string, fn func(context.Context) (buildResult, error)) (buildResult, error, bool) {
	resultChan := group.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return buildResult{}, ctx.Err(), false
	case res := <-resultChan:
		if res.Err != nil {
			return buildResult{}, res.Err, res.Shared
		}
		return res.Val.(buildResult), nil, res.Shared
	}
}
