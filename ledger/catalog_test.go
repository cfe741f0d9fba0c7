package ledger_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/ledger"
)

func TestCatalog_SaveValidatesLengths(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.catalog.SaveUnit(ctx, &ledger.Unit{Name: strings.Repeat("u", 17)})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ledger.RuleTooLong, verr.Rule)

	err = e.catalog.SaveWarehouse(ctx, &ledger.Warehouse{Name: "  "})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ledger.RuleRequired, verr.Rule)

	// length counts characters, not bytes
	err = e.catalog.SaveWarehouse(ctx, &ledger.Warehouse{Name: strings.Repeat("ж", 32)})
	assert.NoError(t, err)
}

func TestCatalog_SaveMaterial_NormalizesFields(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	blank := "  "
	m := ledger.Material{
		Name:          "  Brake pad ",
		UnitID:        e.unit.ID,
		CategoryID:    e.category.ID,
		ArticleNumber: &blank,
		Compatibility: []string{" MAN TGX ", "", "Volvo FH"},
	}
	require.NoError(t, e.catalog.SaveMaterial(ctx, &m))

	got, err := e.catalog.Material(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Brake pad", got.Name)
	assert.Nil(t, got.ArticleNumber)
	assert.Equal(t, []string{"MAN TGX", "Volvo FH"}, got.Compatibility)

	// two materials without article numbers do not collide
	other := ledger.Material{Name: "Brake disc", UnitID: e.unit.ID, CategoryID: e.category.ID}
	assert.NoError(t, e.catalog.SaveMaterial(ctx, &other))
}

func TestCatalog_SaveMaterial_UnknownUnit(t *testing.T) {
	e := newEnv(t)
	err := e.catalog.SaveMaterial(context.Background(), &ledger.Material{Name: "x", UnitID: 404, CategoryID: e.category.ID})

	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unit", verr.Field)
	assert.Equal(t, ledger.RuleUnknownReference, verr.Rule)
}

func TestCatalog_DuplicateName(t *testing.T) {
	e := newEnv(t)
	err := e.catalog.SaveCategory(context.Background(), &ledger.Category{Name: "Oils"})
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
	assert.True(t, ledger.IsConflict(err))
}

func TestCatalog_ProtectOnDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, e.main.ID, day(3, 1), "1", "1")

	assert.ErrorIs(t, e.catalog.DeleteUnit(ctx, e.unit.ID), ledger.ErrReferenced)
	assert.ErrorIs(t, e.catalog.DeleteCategory(ctx, e.category.ID), ledger.ErrReferenced)
	assert.ErrorIs(t, e.catalog.DeleteMaterial(ctx, e.oil.ID), ledger.ErrReferenced)
	assert.ErrorIs(t, e.catalog.DeleteWarehouse(ctx, e.main.ID), ledger.ErrReferenced)

	// the unused warehouse can go
	require.NoError(t, e.catalog.DeleteWarehouse(ctx, e.annex.ID))
	assert.ErrorIs(t, e.catalog.DeleteWarehouse(ctx, e.annex.ID), ledger.ErrNotFound)
}

func TestCatalog_Listings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.receive(t, e.main.ID, day(3, 1), "1", "1")
	unused := ledger.Material{Name: "Antifreeze", UnitID: e.unit.ID, CategoryID: e.category.ID}
	require.NoError(t, e.catalog.SaveMaterial(ctx, &unused))

	warehouses, err := e.catalog.Warehouses(ctx)
	require.NoError(t, err)
	require.Len(t, warehouses, 2)
	assert.Equal(t, "Annex", warehouses[0].Name)
	assert.False(t, warehouses[0].DeleteForbidden)
	assert.True(t, warehouses[1].DeleteForbidden)

	categories, err := e.catalog.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, 2, categories[0].Materials)

	materials, err := e.catalog.Materials(ctx, ledger.MaterialFilter{})
	require.NoError(t, err)
	require.Len(t, materials, 2)
	assert.Equal(t, "Antifreeze", materials[0].Name)
	assert.False(t, materials[0].DeleteForbidden)
	assert.True(t, materials[1].DeleteForbidden)
	assert.Equal(t, "l", materials[1].UnitName)
	assert.True(t, materials[1].UnitPrecise)
}

func TestCatalog_RenameCompatibilityTag(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	other := ledger.Material{Name: "Wiper", UnitID: e.unit.ID, CategoryID: e.category.ID, Compatibility: []string{"MAN TGX"}}
	require.NoError(t, e.catalog.SaveMaterial(ctx, &other))

	// WHEN: the vehicle tag is renamed
	n, err := e.catalog.RenameCompatibilityTag(ctx, "Volvo FH", "Volvo FH16")

	// THEN: only materials carrying it change
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	oil, err := e.catalog.Material(ctx, e.oil.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Volvo FH16"}, oil.Compatibility)
	wiper, err := e.catalog.Material(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"MAN TGX"}, wiper.Compatibility)

	n, err = e.catalog.RenameCompatibilityTag(ctx, "Volvo FH16", "Volvo FH16")
	require.NoError(t, err)
	assert.Zero(t, n)
}
