package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/launchpad/internal/catalog/domain"
	"github.com/smallbiznis/launchpad/internal/catalog/repository"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	db := testutil.OpenDB(t, testutil.OfferingsTable)
	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.SnowflakeNode(t),
		Clock: clock.NewFakeClock(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestCreateSlugifiesCodeAndDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateRequest{
		Name:      "Constitución de Compañía SAS",
		Category:  domain.CategoryCompanyFormation,
		UnitPrice: 49900,
		Features:  []string{"RUC", "Escritura"},
	})
	require.NoError(t, err)
	assert.Equal(t, "constitucion-de-compania-sas", created.Code)
	assert.Equal(t, "USD", created.Currency)
	assert.True(t, created.IsActive)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(49900), got.UnitPrice)
	assert.JSONEq(t, `["RUC","Escritura"]`, string(got.Features))
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{Code: "logo", Name: "Logo", Category: domain.CategoryBranding, UnitPrice: 100})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateRequest{Code: "Logo", Name: "Logo 2", Category: domain.CategoryBranding, UnitPrice: 100})
	assert.ErrorIs(t, err, domain.ErrCodeTaken)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{Name: " ", Category: domain.CategoryLegal})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", Category: "food"})
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", Category: domain.CategoryLegal, UnitPrice: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", Category: domain.CategoryLegal, Currency: "DOLLAR"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestGetUnknownOffering(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Get(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestSetActiveAndListActiveOnly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, domain.CreateRequest{Name: "Web", Category: domain.CategoryDigital, UnitPrice: 30000})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "Firma", Category: domain.CategoryDigital, UnitPrice: 2500})
	require.NoError(t, err)

	updated, err := svc.SetActive(ctx, a.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	active, err := svc.List(ctx, domain.ListRequest{Category: domain.CategoryDigital, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "firma", active[0].Code)

	all, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.SetActive(ctx, 999, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
