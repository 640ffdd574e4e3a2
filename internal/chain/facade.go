// Package chain provides rate-limited, retrying access to the prediction
// contract: a pull surface for views, blocks and historical event ranges,
// and a push surface streaming live events over a websocket subscription.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/prediction-scanner/internal/retry"
	scantypes "github.com/prediction-scanner/internal/types"
)

// Reader is the pull surface consumed by the pipelines. The facade
// implements it; tests substitute fakes.
type Reader interface {
	CurrentEpoch(ctx context.Context) (int64, error)
	Round(ctx context.Context, epoch int64) (*RoundView, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Block(ctx context.Context, number uint64) (*Block, error)
	FilterEvents(ctx context.Context, fromBlock, toBlock uint64) (*EventBatch, error)
	SearchBlockByTime(ctx context.Context, target int64) (uint64, error)
}

// Facade is the rate-limited pull surface over the prediction contract
type Facade struct {
	client   *ethclient.Client
	contract common.Address
	limiter  *rate.Limiter
	policy   retry.Policy
}

// FacadeConfig holds configuration for creating a Facade
type FacadeConfig struct {
	// RPCURL is the HTTP RPC endpoint. Required.
	RPCURL string

	// ContractAddress is the prediction contract. Required.
	ContractAddress string

	// RateLimitRPS caps pull-surface requests per second. Default: 100.
	RateLimitRPS int

	// Policy is the retry policy for transient failures.
	// Default: three linear attempts (2s * attempt).
	Policy retry.Policy
}

// NewFacade dials the RPC endpoint and returns the pull surface
func NewFacade(cfg *FacadeConfig) (*Facade, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC %s: %w", cfg.RPCURL, err)
	}

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 100
	}
	policy := cfg.Policy
	if policy == nil {
		policy = retry.Default()
	}

	return &Facade{
		client:   client,
		contract: common.HexToAddress(cfg.ContractAddress),
		// Burst 1: a single slot refilling every 1/rps seconds, so excess
		// callers block until the next slot.
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		policy:  policy,
	}, nil
}

// Close releases the underlying RPC client
func (f *Facade) Close() {
	f.client.Close()
}

// do runs one RPC operation under the rate limiter and retry policy.
// Every retry attempt consumes its own rate-limit slot.
func (f *Facade) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, f.policy, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &scantypes.ServiceError{
			Code:    scantypes.CodeChainRequestFailed,
			Message: fmt.Sprintf("%s failed: %v", op, err),
		}
	}
	return nil
}

// callView calls a read-only contract method and unpacks its outputs
func (f *Facade) callView(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	var output []byte
	err = f.do(ctx, method, func(ctx context.Context) error {
		var callErr error
		output, callErr = f.client.CallContract(ctx, ethereum.CallMsg{
			To:   &f.contract,
			Data: input,
		}, nil)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	values, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return values, nil
}

// CurrentEpoch returns the contract's current epoch
func (f *Facade) CurrentEpoch(ctx context.Context) (int64, error) {
	values, err := f.callView(ctx, "currentEpoch")
	if err != nil {
		return 0, err
	}
	epoch, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected currentEpoch result type %T", values[0])
	}
	return epoch.Int64(), nil
}

// Round returns the rounds(epoch) view
func (f *Facade) Round(ctx context.Context, epoch int64) (*RoundView, error) {
	values, err := f.callView(ctx, "rounds", big.NewInt(epoch))
	if err != nil {
		return nil, err
	}
	if len(values) < 11 {
		return nil, fmt.Errorf("unexpected rounds result arity %d", len(values))
	}

	bigAt := func(i int) *big.Int {
		if v, ok := values[i].(*big.Int); ok {
			return v
		}
		return big.NewInt(0)
	}

	return &RoundView{
		Epoch:          bigAt(0).Int64(),
		StartTimestamp: bigAt(1).Int64(),
		LockTimestamp:  bigAt(2).Int64(),
		CloseTimestamp: bigAt(3).Int64(),
		LockPrice:      priceToDecimal(bigAt(4)),
		ClosePrice:     priceToDecimal(bigAt(5)),
		TotalAmount:    weiToDecimal(bigAt(8)),
		BullAmount:     weiToDecimal(bigAt(9)),
		BearAmount:     weiToDecimal(bigAt(10)),
	}, nil
}

// BlockNumber returns the current head block number
func (f *Facade) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := f.do(ctx, "blockNumber", func(ctx context.Context) error {
		var callErr error
		n, callErr = f.client.BlockNumber(ctx)
		return callErr
	})
	return n, err
}

// Block returns the number and timestamp of a block. Only the header is
// fetched; the scanner never needs transaction bodies.
func (f *Facade) Block(ctx context.Context, number uint64) (*Block, error) {
	var header *types.Header
	err := f.do(ctx, "block", func(ctx context.Context) error {
		var callErr error
		header, callErr = f.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return &Block{
		Number:    header.Number.Uint64(),
		Timestamp: int64(header.Time), // #nosec G115 - block timestamps fit in int64
	}, nil
}

// FilterEvents fetches the BetBull, BetBear and Claim streams for a block
// range. The three queries run in parallel; each is individually
// rate-limited and retried.
func (f *Facade) FilterEvents(ctx context.Context, fromBlock, toBlock uint64) (*EventBatch, error) {
	batch := &EventBatch{}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fetch := func(topic common.Hash, apply func(logs []types.Log)) {
		defer wg.Done()
		logs, err := f.filterLogs(ctx, fromBlock, toBlock, topic)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		apply(logs)
	}

	wg.Add(3)
	go fetch(topicBetBull, func(logs []types.Log) {
		batch.BetBulls = decodeBetLogs(logs)
	})
	go fetch(topicBetBear, func(logs []types.Log) {
		batch.BetBears = decodeBetLogs(logs)
	})
	go fetch(topicClaim, func(logs []types.Log) {
		batch.Claims = decodeClaimLogs(logs)
	})
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return batch, nil
}

func (f *Facade) filterLogs(ctx context.Context, fromBlock, toBlock uint64, topic common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{f.contract},
		Topics:    [][]common.Hash{{topic}},
	}

	var logs []types.Log
	err := f.do(ctx, "filterLogs", func(ctx context.Context) error {
		var callErr error
		logs, callErr = f.client.FilterLogs(ctx, query)
		return callErr
	})
	return logs, err
}
