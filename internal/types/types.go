// Package types provides common type definitions for the prediction scanner system.
package types

import "errors"

// Direction represents the side of a bet
type Direction string

const (
	// DirectionUp represents a bet on the price going up ("bull" in the contract ABI)
	DirectionUp Direction = "UP"
	// DirectionDown represents a bet on the price going down ("bear" in the contract ABI)
	DirectionDown Direction = "DOWN"
)

// Valid reports whether the direction is a member of the closed set {UP, DOWN}
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// RoundResult represents the resolved outcome of a round.
// A draw is represented as the absence of a result (empty string / NULL).
type RoundResult string

const (
	// ResultUp means the close price finished above the lock price
	ResultUp RoundResult = "UP"
	// ResultDown means the close price finished below the lock price
	ResultDown RoundResult = "DOWN"
	// ResultNone means the round drew or the result is unknown
	ResultNone RoundResult = ""
)

// BetOutcome represents the outcome of a single historical bet
type BetOutcome string

const (
	// OutcomeWin means the bet direction matched the round result
	OutcomeWin BetOutcome = "WIN"
	// OutcomeLoss means the bet direction opposed the round result
	OutcomeLoss BetOutcome = "LOSS"
	// OutcomeNone means the round drew or the result is unknown
	OutcomeNone BetOutcome = ""
)

// RoundStatus represents the lifecycle phase of a round, derived from which
// on-chain timestamps are non-zero.
type RoundStatus string

const (
	// StatusPending means the round has not started yet
	StatusPending RoundStatus = "pending"
	// StatusBetting means the round is open for bets
	StatusBetting RoundStatus = "betting"
	// StatusLocked means the round is locked, awaiting close
	StatusLocked RoundStatus = "locked"
	// StatusEnded means the round has closed and resolved
	StatusEnded RoundStatus = "ended"
)

// SuspicionFlag identifies one rule of the online suspicious-wallet detector
type SuspicionFlag string

const (
	// FlagLargeAmount fires on a single bet above the amount threshold
	FlagLargeAmount SuspicionFlag = "large_amount"
	// FlagHighTotal fires when a wallet's cumulative bet count crosses the threshold
	FlagHighTotal SuspicionFlag = "high_total"
	// FlagHighFrequency fires on too many bets inside the sliding window
	FlagHighFrequency SuspicionFlag = "high_frequency"
	// FlagRepeatInRound fires on a second or later bet from the same wallet in one epoch
	FlagRepeatInRound SuspicionFlag = "repeat_in_round"
)

// Error codes used across components. Callers match on ServiceError.Code.
const (
	CodeInvalidTimeInput      = "INVALID_TIME_INPUT"
	CodeChainRequestFailed    = "CHAIN_REQUEST_FAILED"
	CodeChainRangeOutOfBounds = "CHAIN_RANGE_OUT_OF_BOUNDS"
	CodeRoundNotClosed        = "ROUND_NOT_CLOSED"
	CodeNextRoundNotStarted   = "NEXT_ROUND_NOT_STARTED"
	CodeIntegrityCheckFailed  = "INTEGRITY_CHECK_FAILED"
	CodeDatabaseUnavailable   = "DATABASE_UNAVAILABLE"
	CodeInvalidDirection      = "INVALID_DIRECTION"
)

// ServiceError represents a structured error with a stable code
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError creates a ServiceError with the given code and message
func NewServiceError(code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// IsCode reports whether err is, or wraps, a *ServiceError carrying the given code
func IsCode(err error, code string) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Code == code
}
