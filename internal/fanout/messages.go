// Package fanout is the WebSocket broadcast surface for live scanner events.
package fanout

import (
	"github.com/shopspring/decimal"

	"github.com/prediction-scanner/internal/timeutil"
	"github.com/prediction-scanner/internal/types"
)

// Message type discriminators on the wire
const (
	TypeWelcome            = "welcome"
	TypeNewBet             = "new_bet"
	TypeRoundUpdate        = "round_update"
	TypeRoundLock          = "round_lock"
	TypeConnectionStatus   = "connection_status"
	TypeSuspiciousActivity = "suspicious_activity"
	TypePing               = "ping"
	TypePong               = "pong"
)

// Welcome greets a newly connected client
type Welcome struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	ClientCount int    `json:"clientCount"`
}

// NewBet announces one live bet. Amounts travel as decimal strings.
type NewBet struct {
	Type       string                `json:"type"`
	Wallet     string                `json:"wallet"`
	Epoch      int64                 `json:"epoch"`
	Direction  types.Direction       `json:"direction"`
	Amount     string                `json:"amount"`
	Timestamp  string                `json:"timestamp"`
	Suspicious bool                  `json:"suspicious"`
	Flags      []types.SuspicionFlag `json:"flags,omitempty"`
}

// RoundUpdate carries the full live view of one round
type RoundUpdate struct {
	Type           string            `json:"type"`
	Epoch          int64             `json:"epoch"`
	Status         types.RoundStatus `json:"status"`
	StartTimestamp int64             `json:"startTimestamp"`
	LockTimestamp  int64             `json:"lockTimestamp"`
	CloseTimestamp int64             `json:"closeTimestamp"`
	LockPrice      string            `json:"lockPrice"`
	ClosePrice     string            `json:"closePrice"`
	TotalAmount    string            `json:"totalAmount"`
	BullAmount     string            `json:"bullAmount"`
	BearAmount     string            `json:"bearAmount"`
	Timestamp      string            `json:"timestamp"`
}

// RoundLock announces that a round closed to new bets
type RoundLock struct {
	Type      string `json:"type"`
	Epoch     int64  `json:"epoch"`
	Timestamp string `json:"timestamp"`
}

// ConnectionStatus reflects the upstream chain subscription state
type ConnectionStatus struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	Timestamp string `json:"timestamp"`
}

// SuspiciousActivity is emitted when the online detector flags a bet
type SuspiciousActivity struct {
	Type        string                `json:"type"`
	Wallet      string                `json:"wallet"`
	Epoch       int64                 `json:"epoch"`
	Direction   types.Direction       `json:"direction"`
	Amount      string                `json:"amount"`
	Flags       []types.SuspicionFlag `json:"flags"`
	TotalBets   int                   `json:"totalBets"`
	TotalAmount string                `json:"totalAmount"`
	Timestamp   string                `json:"timestamp"`
}

// Pong answers a client ping
type Pong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// clientMessage is the only client-originated frame the server understands
type clientMessage struct {
	Type string `json:"type"`
}

// NewWelcome builds a welcome frame with the current timestamp
func NewWelcome(clientCount int) Welcome {
	return Welcome{
		Type:        TypeWelcome,
		Message:     "connected to prediction scanner",
		Timestamp:   timeutil.Now(),
		ClientCount: clientCount,
	}
}

// NewConnectionStatus builds a connection_status frame
func NewConnectionStatus(connected bool) ConnectionStatus {
	return ConnectionStatus{
		Type:      TypeConnectionStatus,
		Connected: connected,
		Timestamp: timeutil.Now(),
	}
}

// NewRoundLock builds a round_lock frame
func NewRoundLock(epoch int64) RoundLock {
	return RoundLock{
		Type:      TypeRoundLock,
		Epoch:     epoch,
		Timestamp: timeutil.Now(),
	}
}

// FormatAmount renders a decimal for the wire
func FormatAmount(d decimal.Decimal) string {
	return d.String()
}
