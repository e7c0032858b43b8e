package models

import "github.com/shopspring/decimal"

// InitialBalance is the balance every new card is opened with.
var InitialBalance = decimal.RequireFromString("500.00")

type Card struct {
	Number   string
	Password string
	Balance  decimal.Decimal
	// Version advances by one on every persisted mutation and is only used
	// to detect concurrent writers.
	Version int64
}

// NewCard returns a card ready to be stored for the first time.
func NewCard(number, password string) *Card {
	return &Card{
		Number:   number,
		Password: password,
		Balance:  InitialBalance,
		Version:  0,
	}
}

// Clone returns a copy that shares no state with c.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

type CreateCard struct {
	Number   string `json:"numeroCartao"`
	Password string `json:"senha"`
}

type CardResponse struct {
	Password string `json:"cardPassword"`
	Number   string `json:"cardNumber"`
}
