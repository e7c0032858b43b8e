package authorizer_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alovak/cardflow-authorizer/authorizer"
	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fastConfig keeps the default attempt count but shrinks the backoff.
func fastConfig() *authorizer.Config {
	cfg := authorizer.DefaultConfig()
	cfg.Retry.BaseDelay = time.Millisecond
	return cfg
}

func seedCard(t *testing.T, repo *authorizer.Repository, number, password, balance string) {
	t.Helper()
	card := models.NewCard(number, password)
	card.Balance = dec(balance)
	require.NoError(t, repo.CreateCard(context.Background(), card))
}
