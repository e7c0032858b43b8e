package authorizer

import (
	"crypto/subtle"

	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/shopspring/decimal"
)

// Rule is a single authorization policy. card is nil when no record matched
// the requested card number. Rules keep no per-request state.
type Rule interface {
	Name() string
	Check(card *models.Card, password string, amount decimal.Decimal) error
}

// Chain runs its rules in order and stops at the first one that fails.
type Chain []Rule

// DefaultChain checks existence, then password, then balance.
func DefaultChain() Chain {
	return Chain{
		CardExistsRule{},
		PasswordRule{},
		SufficientBalanceRule{},
	}
}

// Check returns a *models.DeclineError naming the first rule that failed.
func (c Chain) Check(card *models.Card, password string, amount decimal.Decimal) error {
	for _, rule := range c {
		if err := rule.Check(card, password, amount); err != nil {
			return &models.DeclineError{Rule: rule.Name(), Reason: err}
		}
	}
	return nil
}

type CardExistsRule struct{}

func (CardExistsRule) Name() string { return "card_exists" }

func (CardExistsRule) Check(card *models.Card, _ string, _ decimal.Decimal) error {
	if card == nil {
		return models.ErrCardNotFound
	}
	return nil
}

// PasswordRule compares passwords by exact match. Passwords are stored in
// plaintext.
type PasswordRule struct{}

func (PasswordRule) Name() string { return "password" }

func (PasswordRule) Check(card *models.Card, password string, _ decimal.Decimal) error {
	if card == nil {
		return models.ErrCardNotFound
	}
	if subtle.ConstantTimeCompare([]byte(card.Password), []byte(password)) != 1 {
		return models.ErrInvalidPassword
	}
	return nil
}

// SufficientBalanceRule lets a card be drained to exactly zero.
type SufficientBalanceRule struct{}

func (SufficientBalanceRule) Name() string { return "sufficient_balance" }

func (SufficientBalanceRule) Check(card *models.Card, _ string, amount decimal.Decimal) error {
	if card == nil {
		return models.ErrCardNotFound
	}
	if card.Balance.LessThan(amount) {
		return models.ErrInsufficientBalance
	}
	return nil
}
