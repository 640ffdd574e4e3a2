package chain

import (
	"context"
	"fmt"

	scantypes "github.com/prediction-scanner/internal/types"
)

// blockReader is the slice of the pull surface the search needs
type blockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	Block(ctx context.Context, number uint64) (*Block, error)
}

// SearchBlockByTime returns the number of the block whose timestamp is
// closest to target, by bisection over [1, head]. Every probe updates the
// running closest block; an exact timestamp match returns immediately.
// On equal distance the earlier block wins, which makes the result
// deterministic. O(log N) probes, each rate-limited.
func (f *Facade) SearchBlockByTime(ctx context.Context, target int64) (uint64, error) {
	return searchBlockByTime(ctx, f, target)
}

func searchBlockByTime(ctx context.Context, r blockReader, target int64) (uint64, error) {
	head, err := r.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if head == 0 {
		return 0, &scantypes.ServiceError{
			Code:    scantypes.CodeChainRangeOutOfBounds,
			Message: "chain has no blocks to search",
		}
	}

	var (
		lo, hi   = uint64(1), head
		bestNum  uint64
		bestDist int64 = -1
	)

	for lo <= hi {
		mid := lo + (hi-lo)/2

		block, err := r.Block(ctx, mid)
		if err != nil {
			return 0, err
		}

		dist := block.Timestamp - target
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && mid < bestNum) {
			bestNum = mid
			bestDist = dist
		}

		switch {
		case block.Timestamp == target:
			return mid, nil
		case block.Timestamp < target:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}

	if bestDist < 0 {
		return 0, &scantypes.ServiceError{
			Code:    scantypes.CodeChainRangeOutOfBounds,
			Message: fmt.Sprintf("no block found near timestamp %d", target),
		}
	}
	return bestNum, nil
}
