package authorizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/alovak/cardflow-authorizer/internal/events"
	"github.com/alovak/cardflow-authorizer/internal/pan"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"
)

type Service struct {
	store     CardStore
	processor *Processor
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(logger *slog.Logger, store CardStore, cfg *Config, publisher events.Publisher) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}

	processor := NewProcessor(
		logger,
		NewAuthorizer(store, DefaultChain()),
		NewDebitExecutor(store),
		cfg.Retry,
	)

	return &Service{
		store:     store,
		processor: processor,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "service")),
	}
}

// CreateCard opens a card with the initial balance. If the number is taken
// the error is a *models.AlreadyExistsError holding the stored card.
func (s *Service) CreateCard(ctx context.Context, req models.CreateCard) (*models.Card, error) {
	existing, err := s.store.FindByCardNumber(ctx, req.Number)
	if err == nil {
		return nil, &models.AlreadyExistsError{Card: existing}
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("finding card: %w", err)
	}

	card := models.NewCard(req.Number, req.Password)
	if err := s.store.CreateCard(ctx, card); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("creating card: %w", err)
		}
		// lost the insert race to a concurrent create
		existing, findErr := s.store.FindByCardNumber(ctx, req.Number)
		if findErr != nil {
			return nil, fmt.Errorf("finding card: %w", findErr)
		}
		return nil, &models.AlreadyExistsError{Card: existing}
	}

	s.publish(ctx, events.RoutingKeyCardCreated, models.CardCreatedEvent{
		CardNumber: pan.Mask(card.Number),
		Balance:    card.Balance.StringFixed(2),
		OccurredAt: time.Now().UTC(),
	})

	return card, nil
}

func (s *Service) GetBalance(ctx context.Context, cardNumber string) (decimal.Decimal, error) {
	card, err := s.store.FindByCardNumber(ctx, cardNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return decimal.Zero, models.ErrCardNotFound
		}
		return decimal.Zero, fmt.Errorf("finding card: %w", err)
	}

	return card.Balance, nil
}

// ProcessTransaction authorizes and debits amount from the card. The amount
// must be positive and in whole cents.
func (s *Service) ProcessTransaction(ctx context.Context, req models.TransactionRequest) error {
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Round(2)) {
		return models.ErrInvalidAmount
	}

	event := models.TransactionEvent{
		ID:         uuid.New().String(),
		CardNumber: pan.Mask(req.CardNumber),
		Amount:     req.Amount.StringFixed(2),
	}
	logger := s.logger.With(slog.String("tx", event.ID), slog.String("card", event.CardNumber))

	card, err := s.processor.Process(ctx, req.CardNumber, req.Password, req.Amount)
	if err != nil {
		var decline *models.DeclineError
		if !errors.As(err, &decline) {
			logger.Error("processing transaction", slog.Any("err", err))
			return fmt.Errorf("processing transaction: %w", err)
		}

		logger.Info("transaction declined", slog.String("rule", decline.Rule))
		event.Status = models.TransactionStatusDeclined
		event.Reason = decline.Reason.Error()
		event.OccurredAt = time.Now().UTC()
		s.publish(ctx, events.RoutingKeyTransactionDeclined, event)

		return err
	}

	logger.Info("transaction approved", slog.Int64("version", card.Version))
	event.Status = models.TransactionStatusApproved
	event.Balance = card.Balance.StringFixed(2)
	event.Version = card.Version
	event.OccurredAt = time.Now().UTC()
	s.publish(ctx, events.RoutingKeyTransactionApproved, event)

	return nil
}

// publish never fails the caller; the write it reports is already committed.
func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if err := s.publisher.Publish(ctx, routingKey, body); err != nil {
		s.logger.Error("publishing event", slog.String("routing_key", routingKey), slog.Any("err", err))
	}
}
