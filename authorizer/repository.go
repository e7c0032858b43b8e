package authorizer

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

var (
	ErrNotFound = fmt.Errorf("not found")
	ErrConflict = fmt.Errorf("conflict")
	// ErrVersionConflict is returned by ConditionalSave when another writer
	// already advanced the stored version.
	ErrVersionConflict = fmt.Errorf("version conflict")
)

//go:embed schema.sql
var schema string

// CardStore is the storage the authorization pipeline depends on.
type CardStore interface {
	CreateCard(ctx context.Context, card *models.Card) error
	// FindByCardNumber returns ErrNotFound when no card matches.
	FindByCardNumber(ctx context.Context, number string) (*models.Card, error)
	// ConditionalSave persists card iff the stored version still equals
	// expectedVersion. card.Version must be expectedVersion+1.
	ConditionalSave(ctx context.Context, card *models.Card, expectedVersion int64) error
}

// Repository keeps cards in memory, or in Postgres when built with
// NewPGRepository.
type Repository struct {
	mu    sync.RWMutex
	cards map[string]*models.Card
	db    *sql.DB
}

func NewRepository() *Repository {
	return &Repository{
		cards: make(map[string]*models.Card),
	}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ CardStore = (*Repository)(nil)

func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.cards[card.Number]; ok {
			return fmt.Errorf("card number exists: %w", ErrConflict)
		}
		r.cards[card.Number] = card.Clone()
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO authorizer.cards(card_number, card_password, balance, version)
        VALUES ($1,$2,$3,$4)
    `, card.Number, card.Password, card.Balance, card.Version)
	if isUniqueViolation(err) {
		return fmt.Errorf("card number exists: %w", ErrConflict)
	}
	return err
}

func (r *Repository) FindByCardNumber(ctx context.Context, number string) (*models.Card, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		card, ok := r.cards[number]
		if !ok {
			return nil, ErrNotFound
		}
		return card.Clone(), nil
	}
	row := r.db.QueryRowContext(ctx, `
        SELECT card_number, card_password, balance, version
          FROM authorizer.cards
         WHERE card_number=$1
    `, number)
	var card models.Card
	if err := row.Scan(&card.Number, &card.Password, &card.Balance, &card.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &card, nil
}

func (r *Repository) ConditionalSave(ctx context.Context, card *models.Card, expectedVersion int64) error {
	if card.Version != expectedVersion+1 {
		return fmt.Errorf("version must advance by one: expected %d, got %d", expectedVersion+1, card.Version)
	}
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		stored, ok := r.cards[card.Number]
		if !ok {
			return ErrNotFound
		}
		if stored.Version != expectedVersion {
			return ErrVersionConflict
		}
		r.cards[card.Number] = card.Clone()
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	// set per-transaction statement timeout to avoid long hangs
	if _, err := tx.ExecContext(ctx, `set local statement_timeout = '3s'`); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
        UPDATE authorizer.cards
           SET balance    = $2,
               version    = $3,
               updated_at = now()
         WHERE card_number=$1 AND version=$4
    `, card.Number, card.Balance, card.Version, expectedVersion)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// cards are never deleted, so a miss means the version moved on
		return ErrVersionConflict
	}
	return tx.Commit()
}

// Migrate creates the schema on the Postgres backend.
func (r *Repository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Ping returns DB readiness
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
