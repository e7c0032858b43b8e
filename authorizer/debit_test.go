package authorizer_test

import (
	"context"
	"testing"

	"github.com/alovak/cardflow-authorizer/authorizer"
	"github.com/stretchr/testify/require"
)

func TestDebitExecutor(t *testing.T) {
	ctx := context.Background()
	repo := authorizer.NewRepository()
	seedCard(t, repo, "6549873025634501", "1234", "500.00")
	debiter := authorizer.NewDebitExecutor(repo)

	read, err := repo.FindByCardNumber(ctx, "6549873025634501")
	require.NoError(t, err)

	committed, err := debiter.Debit(ctx, read, dec("10.00"))
	require.NoError(t, err)
	require.Equal(t, int64(1), committed.Version)
	require.True(t, dec("490.00").Equal(committed.Balance))

	// the input snapshot is left as it was read
	require.Equal(t, int64(0), read.Version)
	require.True(t, dec("500.00").Equal(read.Balance))

	stored, err := repo.FindByCardNumber(ctx, "6549873025634501")
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.Version)
	require.True(t, dec("490.00").Equal(stored.Balance))

	t.Run("stale snapshot conflicts and writes nothing", func(t *testing.T) {
		_, err := debiter.Debit(ctx, read, dec("10.00"))
		require.ErrorIs(t, err, authorizer.ErrVersionConflict)

		stored, err := repo.FindByCardNumber(ctx, "6549873025634501")
		require.NoError(t, err)
		require.Equal(t, int64(1), stored.Version)
		require.True(t, dec("490.00").Equal(stored.Balance))
	})
}
