package blends

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jasoncmcclain/mcpmp-api/pkg/db/models"
	pkgerrors "github.com/jasoncmcclain/mcpmp-api/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:blends_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.CoreBlend{}))
	return conn
}

func component(varietal, pct string) models.CompositionComponent {
	return models.CompositionComponent{Varietal: varietal, Percentage: decimal.RequireFromString(pct)}
}

func TestCreateAndListActive(t *testing.T) {
	svc, err := NewService(NewRepository(newTestDB(t)))
	require.NoError(t, err)
	ctx := context.Background()

	ext := "b44-1"
	meritage, err := svc.Create(ctx, CreateInput{
		Name:               "Meritage",
		IsActive:           true,
		ExternalID:         &ext,
		CompositionProfile: []models.CompositionComponent{component("Cabernet Sauvignon", "60"), component("Merlot", "40")},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultBottleSize, meritage.DefaultBottleSize)

	_, err = svc.Create(ctx, CreateInput{
		Name:               "Retired Rosé",
		IsActive:           false,
		CompositionProfile: []models.CompositionComponent{component("Grenache", "100")},
	})
	require.NoError(t, err)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Meritage", active[0].Name)

	loaded, err := svc.Get(ctx, meritage.ID)
	require.NoError(t, err)
	require.Len(t, loaded.CompositionProfile, 2)
	assert.True(t, loaded.CompositionProfile[1].Percentage.Equal(decimal.NewFromInt(40)))

	byExt, err := svc.GetByExternalID(ctx, "b44-1")
	require.NoError(t, err)
	require.NotNil(t, byExt)
	assert.Equal(t, meritage.ID, byExt.ID)

	missing, err := svc.GetByExternalID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.Get(ctx, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestValidateProfile(t *testing.T) {
	assert.NoError(t, ValidateProfile([]models.CompositionComponent{component("Syrah", "66.67"), component("Grenache", "33.33")}))
	assert.NoError(t, ValidateProfile([]models.CompositionComponent{component("Syrah", "66.666"), component("Grenache", "33.333")}))

	for name, profile := range map[string][]models.CompositionComponent{
		"empty":            nil,
		"missing varietal": {component("", "100")},
		"zero share":       {component("Syrah", "100"), component("Grenache", "0")},
		"short of 100":     {component("Syrah", "60"), component("Grenache", "30")},
	} {
		err := ValidateProfile(profile)
		require.Error(t, err, name)
		assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code(), name)
	}
}
