package chain

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Subscriber is the push surface: a websocket subscription to the contract's
// live logs, decoded into a typed event stream. On socket loss it emits a
// disconnected ConnectionStatus event, reconnects with bounded backoff and
// resubscribes; bets missed during an outage are recovered by the
// historical pipeline once the epoch closes.
type Subscriber struct {
	wsURL    string
	contract common.Address

	// Reconnect schedule: base delay grown by the multiplier up to max
	// delay; after maxGrowth attempts the delay stays at max.
	reconnectBase time.Duration
	reconnectMax  time.Duration
	maxGrowth     int

	events chan Event
}

// SubscriberConfig holds configuration for creating a Subscriber
type SubscriberConfig struct {
	// WSURL is the streaming RPC endpoint. Required.
	WSURL string

	// ContractAddress is the prediction contract. Required.
	ContractAddress string

	// ReconnectDelay is the base delay before reattempting a lost
	// subscription. Default: 10s.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the grown delay. Default: 60s.
	MaxReconnectDelay time.Duration

	// MaxGrowthAttempts is how many attempts grow the delay before it is
	// pinned at the cap. Default: 5.
	MaxGrowthAttempts int

	// Buffer is the event channel capacity. Default: 256.
	Buffer int
}

// NewSubscriber creates the push surface. The websocket is not dialed until
// Run is called.
func NewSubscriber(cfg *SubscriberConfig) (*Subscriber, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	base := cfg.ReconnectDelay
	if base <= 0 {
		base = 10 * time.Second
	}
	maxDelay := cfg.MaxReconnectDelay
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	growth := cfg.MaxGrowthAttempts
	if growth <= 0 {
		growth = 5
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}

	return &Subscriber{
		wsURL:         cfg.WSURL,
		contract:      common.HexToAddress(cfg.ContractAddress),
		reconnectBase: base,
		reconnectMax:  maxDelay,
		maxGrowth:     growth,
		events:        make(chan Event, buffer),
	}, nil
}

// Events returns the typed event stream. It is closed when Run returns.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Run drives the subscription until the context is cancelled. It owns the
// events channel and closes it on exit.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.events)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.streamOnce(ctx, attempt)
		if ctx.Err() != nil {
			return
		}

		attempt++
		s.emit(ctx, Event{Kind: EventConnection, Connected: false})
		if err != nil {
			log.Printf("[Subscriber] subscription lost: %v", err)
		}

		delay := s.reconnectDelay(attempt)
		if attempt > s.maxGrowth {
			log.Printf("[Subscriber] reconnect attempt %d exceeds growth window, retrying every %v", attempt, delay)
		} else {
			log.Printf("[Subscriber] reconnecting in %v (attempt %d)", delay, attempt)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// reconnectDelay grows the base delay linearly with each attempt and pins
// it at the cap once the growth window is exhausted.
func (s *Subscriber) reconnectDelay(attempt int) time.Duration {
	if attempt > s.maxGrowth {
		return s.reconnectMax
	}
	d := time.Duration(attempt) * s.reconnectBase
	if d > s.reconnectMax {
		d = s.reconnectMax
	}
	return d
}

// streamOnce dials, subscribes and pumps decoded events until the
// subscription errors or the context is cancelled.
func (s *Subscriber) streamOnce(ctx context.Context, attempt int) error {
	client, err := ethclient.DialContext(ctx, s.wsURL)
	if err != nil {
		return err
	}
	defer client.Close()

	logs := make(chan types.Log, 64)
	sub, err := client.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{s.contract},
		Topics: [][]common.Hash{{
			topicBetBull, topicBetBear, topicStartRound, topicLockRound,
		}},
	}, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	if attempt > 0 {
		log.Printf("[Subscriber] resubscribed after %d attempts", attempt)
	}
	s.emit(ctx, Event{Kind: EventConnection, Connected: true})

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return err
		case lg := <-logs:
			if ev := decodePushLog(lg); ev != nil {
				s.emit(ctx, *ev)
			}
		}
	}
}

func (s *Subscriber) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
