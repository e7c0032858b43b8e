package authorizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/shopspring/decimal"
)

// DebitExecutor writes the debited balance back with a version check.
type DebitExecutor struct {
	store CardStore
}

func NewDebitExecutor(store CardStore) *DebitExecutor {
	return &DebitExecutor{store: store}
}

// Debit returns the committed card, or an error wrapping ErrVersionConflict
// when another writer got there first. card itself is left untouched.
func (d *DebitExecutor) Debit(ctx context.Context, card *models.Card, amount decimal.Decimal) (*models.Card, error) {
	next := card.Clone()
	next.Balance = card.Balance.Sub(amount)
	next.Version = card.Version + 1

	if err := d.store.ConditionalSave(ctx, next, card.Version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("saving card: %w", err)
	}

	return next, nil
}
