package authorizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/shopspring/decimal"
)

// Authorizer looks a card up once and runs the rule chain against it.
type Authorizer struct {
	store CardStore
	chain Chain
}

func NewAuthorizer(store CardStore, chain Chain) *Authorizer {
	if chain == nil {
		chain = DefaultChain()
	}
	return &Authorizer{
		store: store,
		chain: chain,
	}
}

// Authorize returns the snapshot the rules approved, including the version it
// was read at. The snapshot belongs to a single attempt.
func (a *Authorizer) Authorize(ctx context.Context, cardNumber, password string, amount decimal.Decimal) (*models.Card, error) {
	card, err := a.store.FindByCardNumber(ctx, cardNumber)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("finding card: %w", err)
		}
		card = nil
	}

	if err := a.chain.Check(card, password, amount); err != nil {
		return nil, err
	}

	return card, nil
}
