package authorizer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alovak/cardflow-authorizer/authorizer"
	"github.com/alovak/cardflow-authorizer/authorizer/models"
	"github.com/alovak/cardflow-authorizer/internal/events"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	bodies []interface{}
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.bodies = append(p.bodies, body)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, k := range p.keys {
		if k == key {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*authorizer.Service, *recordingPublisher) {
	t.Helper()
	publisher := &recordingPublisher{}
	return authorizer.NewService(testLogger(), authorizer.NewRepository(), fastConfig(), publisher), publisher
}

func TestService_CreateCard(t *testing.T) {
	ctx := context.Background()
	svc, publisher := newTestService(t)

	card, err := svc.CreateCard(ctx, models.CreateCard{Number: "6549873025634501", Password: "1234"})
	require.NoError(t, err)
	require.Equal(t, "500.00", card.Balance.StringFixed(2))
	require.Equal(t, 1, publisher.count(events.RoutingKeyCardCreated))

	balance, err := svc.GetBalance(ctx, "6549873025634501")
	require.NoError(t, err)
	require.Equal(t, "500.00", balance.StringFixed(2))

	t.Run("duplicate returns the stored card untouched", func(t *testing.T) {
		_, err := svc.CreateCard(ctx, models.CreateCard{Number: "6549873025634501", Password: "other"})
		require.ErrorIs(t, err, models.ErrCardAlreadyExists)

		var exists *models.AlreadyExistsError
		require.True(t, errors.As(err, &exists))
		require.Equal(t, "1234", exists.Card.Password)
		require.Equal(t, 1, publisher.count(events.RoutingKeyCardCreated))
	})

	t.Run("balance reads are idempotent", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			balance, err := svc.GetBalance(ctx, "6549873025634501")
			require.NoError(t, err)
			require.Equal(t, "500.00", balance.StringFixed(2))
		}
	})

	t.Run("unknown card", func(t *testing.T) {
		_, err := svc.GetBalance(ctx, "0000000000000000")
		require.ErrorIs(t, err, models.ErrCardNotFound)
	})
}

func TestService_ConcurrentCreateKeepsOneCard(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateCard(ctx, models.CreateCard{Number: "6549873025634501", Password: "1234"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, models.ErrCardAlreadyExists)
	}
	require.Equal(t, 1, created)
}

func TestService_ProcessTransaction(t *testing.T) {
	ctx := context.Background()
	svc, publisher := newTestService(t)

	_, err := svc.CreateCard(ctx, models.CreateCard{Number: "6549873025634501", Password: "1234"})
	require.NoError(t, err)

	require.NoError(t, svc.ProcessTransaction(ctx, models.TransactionRequest{
		CardNumber: "6549873025634501", Password: "1234", Amount: dec("10.00"),
	}))
	require.Equal(t, 1, publisher.count(events.RoutingKeyTransactionApproved))

	balance, err := svc.GetBalance(ctx, "6549873025634501")
	require.NoError(t, err)
	require.Equal(t, "490.00", balance.StringFixed(2))

	cases := []struct {
		name string
		req  models.TransactionRequest
		want error
	}{
		{"unknown card", models.TransactionRequest{CardNumber: "0000000000000000", Password: "1234", Amount: dec("1.00")}, models.ErrCardNotFound},
		{"wrong password", models.TransactionRequest{CardNumber: "6549873025634501", Password: "0000", Amount: dec("1.00")}, models.ErrInvalidPassword},
		{"wrong password and too much", models.TransactionRequest{CardNumber: "6549873025634501", Password: "0000", Amount: dec("9999.00")}, models.ErrInvalidPassword},
		{"too much", models.TransactionRequest{CardNumber: "6549873025634501", Password: "1234", Amount: dec("490.01")}, models.ErrInsufficientBalance},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := svc.ProcessTransaction(ctx, c.req)
			require.ErrorIs(t, err, c.want)
			require.True(t, models.IsBusinessFailure(err))
		})
	}
	require.Equal(t, len(cases), publisher.count(events.RoutingKeyTransactionDeclined))

	t.Run("invalid amounts are rejected before authorization", func(t *testing.T) {
		for _, amount := range []string{"0", "-5.00", "0.001", "10.005"} {
			err := svc.ProcessTransaction(ctx, models.TransactionRequest{
				CardNumber: "6549873025634501", Password: "1234", Amount: dec(amount),
			})
			require.ErrorIs(t, err, models.ErrInvalidAmount)
		}

		balance, err := svc.GetBalance(ctx, "6549873025634501")
		require.NoError(t, err)
		require.True(t, dec("490.00").Equal(balance))
	})

	t.Run("trailing zeros are whole cents", func(t *testing.T) {
		require.NoError(t, svc.ProcessTransaction(ctx, models.TransactionRequest{
			CardNumber: "6549873025634501", Password: "1234", Amount: dec("0.5000"),
		}))
		require.NoError(t, svc.ProcessTransaction(ctx, models.TransactionRequest{
			CardNumber: "6549873025634501", Password: "1234", Amount: dec("0.50"),
		}))
	})

	t.Run("exact balance empties the card", func(t *testing.T) {
		require.NoError(t, svc.ProcessTransaction(ctx, models.TransactionRequest{
			CardNumber: "6549873025634501", Password: "1234", Amount: dec("489.00"),
		}))
		balance, err := svc.GetBalance(ctx, "6549873025634501")
		require.NoError(t, err)
		require.Equal(t, "0.00", balance.StringFixed(2))
	})
}

func TestService_PublishFailureDoesNotFailTransaction(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{err: errors.New("broker down")}
	svc := authorizer.NewService(testLogger(), authorizer.NewRepository(), fastConfig(), publisher)

	_, err := svc.CreateCard(ctx, models.CreateCard{Number: "6549873025634501", Password: "1234"})
	require.NoError(t, err)
	require.NoError(t, svc.ProcessTransaction(ctx, models.TransactionRequest{
		CardNumber: "6549873025634501", Password: "1234", Amount: dec("1.00"),
	}))
}

func TestService_ConcurrentDebitsConserveBalance(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.CreateCard(ctx, models.CreateCard{Number: "6549873025634501", Password: "1234"})
	require.NoError(t, err)

	// with five attempts each of five writers loses at most four races
	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.ProcessTransaction(ctx, models.TransactionRequest{
				CardNumber: "6549873025634501", Password: "1234", Amount: dec("10.00"),
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	balance, err := svc.GetBalance(ctx, "6549873025634501")
	require.NoError(t, err)
	require.Equal(t, "450.00", balance.StringFixed(2))
}

func TestService_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.CreateCard(ctx, models.CreateCard{Number: "6549873025634501", Password: "1234"})
	require.NoError(t, err)

	const n = 3
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.ProcessTransaction(ctx, models.TransactionRequest{
				CardNumber: "6549873025634501", Password: "1234", Amount: dec("300.00"),
			})
		}()
	}
	wg.Wait()
	close(errs)

	approved := 0
	for err := range errs {
		if err == nil {
			approved++
			continue
		}
		require.ErrorIs(t, err, models.ErrInsufficientBalance)
	}
	require.Equal(t, 1, approved)

	balance, err := svc.GetBalance(ctx, "6549873025634501")
	require.NoError(t, err)
	require.Equal(t, "200.00", balance.StringFixed(2))
}
