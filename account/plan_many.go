package account

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/lazy-account/lazyaccount/types"
)

// PlanResult is the outcome of one request in PlanMany.
type PlanResult struct {
	Bundle  types.DeploymentBundle
	Address common.Address
}

// PlanMany plans independent deployments concurrently, at most limit at a time
// (unbounded when limit <= 0). Results are returned in request order. The first error
// cancels the remaining work.
func PlanMany(ctx context.Context, impl Implementation, reqs []PlanRequest, limit int) ([]PlanResult, error) {
	results := make([]PlanResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			bundle, addr, err := impl.PlanDeployment(gctx, req)
			if err != nil {
				return err
			}
			results[i] = PlanResult{Bundle: bundle, Address: addr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
