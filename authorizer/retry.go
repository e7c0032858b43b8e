package authorizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/alovak/cardflow-authorizer/internal/pan"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

// RetryPolicy bounds how often a transaction is re-run after losing a
// version race, and how long to wait in between.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2,
	}
}

// Delay is the wait after the given failed attempt: BaseDelay × Multiplier^(attempt-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative, got %s", p.BaseDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1, got %v", p.Multiplier)
	}
	return nil
}

type CardAuthorizer interface {
	Authorize(ctx context.Context, cardNumber, password string, amount decimal.Decimal) (*models.Card, error)
}

type CardDebiter interface {
	Debit(ctx context.Context, card *models.Card, amount decimal.Decimal) (*models.Card, error)
}

// Processor drives authorize → debit and starts over from a fresh read
// whenever the debit loses a version race.
type Processor struct {
	authorizer CardAuthorizer
	debiter    CardDebiter
	policy     RetryPolicy
	logger     *slog.Logger
}

func NewProcessor(logger *slog.Logger, authorizer CardAuthorizer, debiter CardDebiter, policy RetryPolicy) *Processor {
	return &Processor{
		authorizer: authorizer,
		debiter:    debiter,
		policy:     policy,
		logger:     logger.With(slog.String("component", "processor")),
	}
}

// Process returns the committed card. Declines come back as
// *models.DeclineError right away; running out of attempts returns an error
// wrapping models.ErrRetriesExhausted.
func (p *Processor) Process(ctx context.Context, cardNumber, password string, amount decimal.Decimal) (*models.Card, error) {
	maxAttempts := p.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		card, err := p.attempt(ctx, cardNumber, password, amount)
		if err == nil {
			return card, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err

		p.logger.Debug("version conflict",
			slog.String("card", pan.Mask(cardNumber)),
			slog.Int("attempt", attempt),
		)

		if attempt == maxAttempts {
			break
		}
		if err := sleepContext(ctx, p.policy.Delay(attempt)); err != nil {
			return nil, fmt.Errorf("waiting to retry: %w", err)
		}
	}

	p.logger.Warn("giving up after version conflicts",
		slog.String("card", pan.Mask(cardNumber)),
		slog.Int("attempts", maxAttempts),
	)

	return nil, fmt.Errorf("%w after %d attempts: %v", models.ErrRetriesExhausted, maxAttempts, lastErr)
}

func (p *Processor) attempt(ctx context.Context, cardNumber, password string, amount decimal.Decimal) (*models.Card, error) {
	card, err := p.authorizer.Authorize(ctx, cardNumber, password, amount)
	if err != nil {
		return nil, err
	}
	return p.debiter.Debit(ctx, card, amount)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
