package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionRequest struct {
	CardNumber string          `json:"numeroCartao"`
	Password   string          `json:"senha"`
	Amount     decimal.Decimal `json:"valor"`
}

type TransactionStatus string

const (
	TransactionStatusApproved TransactionStatus = "approved"
	TransactionStatusDeclined TransactionStatus = "declined"
)

// TransactionEvent is published after every transaction that reaches a terminal outcome.
type TransactionEvent struct {
	ID         string            `json:"id"`
	CardNumber string            `json:"card_number"` // masked
	Amount     string            `json:"amount"`
	Status     TransactionStatus `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Balance    string            `json:"balance,omitempty"`
	Version    int64             `json:"version,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type CardCreatedEvent struct {
	CardNumber string    `json:"card_number"` // masked
	Balance    string    `json:"balance"`
	OccurredAt time.Time `json:"occurred_at"`
}
