package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"

	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/selection"
	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/infrastructure/migration"
)

func newTestOrder(t *testing.T, ref string) *subscription.Order {
	t.Helper()
	sourdough := mustProduct(t, "Sourdough", "Artisanal Breads", 50)
	puff := mustProduct(t, "Veg Puff", "Savouries", 100)

	sel := selection.New().
		Increment(delivery.Tuesday, sourdough).
		Increment(delivery.Tuesday, sourdough).
		Increment(delivery.Saturday, puff)

	start := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 11, 21, 0, 0, 0, 0, time.UTC)
	return &subscription.Order{
		ID:               uuid.New(),
		PlanID:           uuid.New(),
		Recurrence:       subscription.RecurrenceRecurring,
		StartDate:        start,
		EndDate:          &end,
		Selections:       sel,
		Address:          valueobject.MustNewAddress("Asha Rao", "12 MG Road", "Bengaluru", "560001"),
		Total:            valueobject.NewMoneyINRFromInt(1300),
		PaymentReference: ref,
		CreatedAt:        time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
	}
}

func TestGormOrderRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOrderRepository(newSQLiteDatabase(t).DB)

	order := newTestOrder(t, "pi_123")
	require.NoError(t, repo.Save(ctx, order))

	lookups := map[string]func() (*subscription.Order, error){
		"by id":                func() (*subscription.Order, error) { return repo.FindByID(ctx, order.ID) },
		"by plan id":           func() (*subscription.Order, error) { return repo.FindByPlanID(ctx, order.PlanID) },
		"by payment reference": func() (*subscription.Order, error) { return repo.FindByPaymentReference(ctx, "pi_123") },
	}
	for name, find := range lookups {
		t.Run(name, func(t *testing.T) {
			got, err := find()
			require.NoError(t, err)
			assert.Equal(t, order.ID, got.ID)
			assert.Equal(t, order.PlanID, got.PlanID)
			assert.Equal(t, subscription.RecurrenceRecurring, got.Recurrence)
			assert.True(t, order.StartDate.Equal(got.StartDate))
			require.NotNil(t, got.EndDate)
			assert.True(t, order.EndDate.Equal(*got.EndDate))
			assert.True(t, order.Selections.Equal(got.Selections))
			assert.Equal(t, 2, got.Selections.ItemsOn(delivery.Tuesday))
			assert.True(t, order.Address.Equals(got.Address))
			assert.True(t, order.Total.Equals(got.Total))
			assert.Equal(t, "pi_123", got.PaymentReference)
		})
	}
}

func TestGormOrderRepository_OneTimeOrderHasNoEndDate(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOrderRepository(newSQLiteDatabase(t).DB)

	order := newTestOrder(t, "pi_once")
	order.Recurrence = subscription.RecurrenceOneTime
	order.EndDate = nil
	require.NoError(t, repo.Save(ctx, order))

	got, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, got.EndDate)
	assert.Equal(t, subscription.RecurrenceOneTime, got.Recurrence)
}

func TestGormOrderRepository_DuplicateSave(t *testing.T) {
	ctx := context.Background()

	t.Run("same plan", func(t *testing.T) {
		repo := NewGormOrderRepository(newSQLiteDatabase(t).DB)
		first := newTestOrder(t, "pi_a")
		require.NoError(t, repo.Save(ctx, first))

		second := newTestOrder(t, "pi_b")
		second.PlanID = first.PlanID
		assert.ErrorIs(t, repo.Save(ctx, second), shared.ErrAlreadyExists)
	})

	t.Run("same payment reference", func(t *testing.T) {
		repo := NewGormOrderRepository(newSQLiteDatabase(t).DB)
		require.NoError(t, repo.Save(ctx, newTestOrder(t, "pi_same")))
		assert.ErrorIs(t, repo.Save(ctx, newTestOrder(t, "pi_same")), shared.ErrAlreadyExists)
	})
}

func TestGormOrderRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOrderRepository(newSQLiteDatabase(t).DB)

	_, err := repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = repo.FindByPlanID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = repo.FindByPaymentReference(ctx, "pi_missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormOrderRepository_SaveDriverError(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	repo := NewGormOrderRepository(db.DB)

	mock.ExpectExec(`INSERT INTO "orders"`).WillReturnError(errors.New("connection reset"))

	err := repo.Save(context.Background(), newTestOrder(t, "pi_x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, shared.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "failed to insert order")
}

func TestGormOrderRepository_FindByPlanID_Query(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	repo := NewGormOrderRepository(db.DB)

	planID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "orders" WHERE plan_id = \$1 ORDER BY .* LIMIT .*`).
		WithArgs(planID, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByPlanID(context.Background(), planID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// newPostgresDatabase starts a throwaway PostgreSQL and applies the embedded
// migrations, so the real unique indexes are in place.
func newPostgresDatabase(t *testing.T) *Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bakery_test"),
		tcpostgres.WithUsername("bakery"),
		tcpostgres.WithPassword("bakery"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(postgres.Open(dsn), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	m, err := migration.New(sqlDB, "", nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	return db
}

func TestGormOrderRepository_Postgres(t *testing.T) {
	ctx := context.Background()
	repo := NewGormOrderRepository(newPostgresDatabase(t).DB)

	order := newTestOrder(t, "pi_pg")
	require.NoError(t, repo.Save(ctx, order))

	t.Run("round trips through jsonb and date columns", func(t *testing.T) {
		got, err := repo.FindByPaymentReference(ctx, "pi_pg")
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
		assert.True(t, order.StartDate.Equal(got.StartDate))
		require.NotNil(t, got.EndDate)
		assert.True(t, order.EndDate.Equal(*got.EndDate))
		assert.True(t, order.Selections.Equal(got.Selections))
		assert.True(t, order.Address.Equals(got.Address))
		assert.True(t, order.Total.Equals(got.Total))
	})

	t.Run("unique payment reference index", func(t *testing.T) {
		dup := newTestOrder(t, "pi_pg")
		assert.ErrorIs(t, repo.Save(ctx, dup), shared.ErrAlreadyExists)
	})

	t.Run("unique plan index", func(t *testing.T) {
		dup := newTestOrder(t, "pi_pg_other")
		dup.PlanID = order.PlanID
		assert.ErrorIs(t, repo.Save(ctx, dup), shared.ErrAlreadyExists)
	})
}
