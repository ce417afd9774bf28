package requests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/pkg/db/models"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
)

func setupRequestsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS payment_requests (
  id TEXT PRIMARY KEY,
  request_code TEXT NOT NULL UNIQUE,
  payment_token TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  payer_name TEXT,
  payer_email TEXT,
  payer_phone TEXT,
  allowed_methods TEXT NOT NULL,
  selected_method TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  expires_at DATETIME,
  paid_at DATETIME,
  tenant_id TEXT NOT NULL,
  metadata TEXT,
  created_by TEXT,
  updated_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedRequest(t *testing.T, repo Repository, mutate func(*models.PaymentRequest)) *models.PaymentRequest {
	t.Helper()
	request := &models.PaymentRequest{
		ID:             uuid.New(),
		RequestCode:    "PR-" + uuid.NewString()[:12],
		PaymentToken:   uuid.NewString(),
		Title:          "Invoice 42",
		Amount:         decimal.RequireFromString("120.00"),
		Currency:       enums.CurrencyUSD,
		AllowedMethods: pq.StringArray{string(enums.PaymentMethodCard)},
		Status:         enums.PaymentRequestStatusPending,
		TenantID:       uuid.New(),
	}
	if mutate != nil {
		mutate(request)
	}
	require.NoError(t, repo.Create(context.Background(), request))
	return request
}

func TestRepositoryFindByCodeAndToken(t *testing.T) {
	repo := NewRepository(setupRequestsTestDB(t))
	seeded := seedRequest(t, repo, nil)

	byCode, err := repo.FindByCode(context.Background(), seeded.RequestCode)
	require.NoError(t, err)
	require.NotNil(t, byCode)
	assert.Equal(t, seeded.ID, byCode.ID)
	assert.True(t, seeded.Amount.Equal(byCode.Amount))

	byToken, err := repo.FindByToken(context.Background(), seeded.PaymentToken)
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, seeded.RequestCode, byToken.RequestCode)

	missing, err := repo.FindByCode(context.Background(), "PR-UNKNOWN")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositoryListFiltersByTenantAndStatus(t *testing.T) {
	repo := NewRepository(setupRequestsTestDB(t))
	tenantID := uuid.New()

	pending := seedRequest(t, repo, func(r *models.PaymentRequest) {
		r.TenantID = tenantID
	})
	seedRequest(t, repo, func(r *models.PaymentRequest) {
		r.TenantID = tenantID
		r.Status = enums.PaymentRequestStatusCancelled
	})
	seedRequest(t, repo, nil) // other tenant

	status := enums.PaymentRequestStatusPending
	rows, err := repo.List(context.Background(), ListQuery{TenantID: tenantID, Status: &status})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending.ID, rows[0].ID)

	all, err := repo.List(context.Background(), ListQuery{TenantID: tenantID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRepositoryListSearchMatchesPayerFields(t *testing.T) {
	repo := NewRepository(setupRequestsTestDB(t))
	tenantID := uuid.New()

	match := seedRequest(t, repo, func(r *models.PaymentRequest) {
		r.TenantID = tenantID
		r.PayerEmail = "ada@example.com"
	})
	seedRequest(t, repo, func(r *models.PaymentRequest) {
		r.TenantID = tenantID
		r.PayerEmail = "grace@example.com"
	})

	rows, err := repo.List(context.Background(), ListQuery{TenantID: tenantID, Search: "ada@"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, match.ID, rows[0].ID)
}

func TestRepositoryListExpiredSkipsTerminalStatuses(t *testing.T) {
	repo := NewRepository(setupRequestsTestDB(t))
	past := time.Now().Add(-time.Hour)

	expired := seedRequest(t, repo, func(r *models.PaymentRequest) {
		r.ExpiresAt = &past
	})
	seedRequest(t, repo, func(r *models.PaymentRequest) {
		r.ExpiresAt = &past
		r.Status = enums.PaymentRequestStatusCompleted
	})
	seedRequest(t, repo, nil) // no expiry set

	rows, err := repo.ListExpired(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, expired.ID, rows[0].ID)
}
