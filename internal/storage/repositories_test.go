package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) *Repositories {
	t.Helper()

	db, err := Open(OpenOptions{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, InitSchema(context.Background(), db))
	return NewRepositories(db)
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestProductUpsertMergesPartialRows(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	err := repos.Products.Upsert(ctx, Product{
		ArticleID: "KB-100",
		Name:      strPtr("Kabelbinder 100x2,5"),
		Price:     floatPtr(4.99),
	})
	require.NoError(t, err)

	// A later row carrying only stock must not clear name or price.
	err = repos.Products.Upsert(ctx, Product{
		ArticleID: "KB-100",
		Stock:     intPtr(2500),
		Category:  strPtr("Kabelbinder"),
	})
	require.NoError(t, err)

	p, err := repos.Products.GetByID(ctx, "KB-100")
	require.NoError(t, err)
	require.NotNil(t, p.Name)
	assert.Equal(t, "Kabelbinder 100x2,5", *p.Name)
	require.NotNil(t, p.Price)
	assert.Equal(t, 4.99, *p.Price)
	require.NotNil(t, p.Stock)
	assert.Equal(t, 2500, *p.Stock)
	require.NotNil(t, p.Category)
	assert.Equal(t, "Kabelbinder", *p.Category)
}

func TestProductUpsertAllFieldsAbsent(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	require.NoError(t, repos.Products.Upsert(ctx, Product{ArticleID: "KB-1", Name: strPtr("x")}))
	require.NoError(t, repos.Products.Upsert(ctx, Product{ArticleID: "KB-1"}))

	p, err := repos.Products.GetByID(ctx, "KB-1")
	require.NoError(t, err)
	require.NotNil(t, p.Name)
	assert.Equal(t, "x", *p.Name)
}

func TestProductGetByIDNotFound(t *testing.T) {
	repos := newTestRepos(t)

	_, err := repos.Products.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProductCategory(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	// Unknown article resolves to no category, not an error.
	cat, err := repos.Products.Category(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "", cat)

	require.NoError(t, repos.Products.Upsert(ctx, Product{ArticleID: "KB-2"}))
	cat, err = repos.Products.Category(ctx, "KB-2")
	require.NoError(t, err)
	assert.Equal(t, "", cat)

	require.NoError(t, repos.Products.Upsert(ctx, Product{ArticleID: "KB-2", Category: strPtr("Schrumpfschlauch")}))
	cat, err = repos.Products.Category(ctx, "KB-2")
	require.NoError(t, err)
	assert.Equal(t, "Schrumpfschlauch", cat)
}

func TestProductListAllOrdered(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	for _, id := range []string{"KB-3", "KB-1", "KB-2"} {
		require.NoError(t, repos.Products.Upsert(ctx, Product{ArticleID: id}))
	}

	products, err := repos.Products.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "KB-1", products[0].ArticleID)
	assert.Equal(t, "KB-3", products[2].ArticleID)
}

func TestProductListByCategory(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	require.NoError(t, repos.Products.Upsert(ctx, Product{ArticleID: "KB-1", Category: strPtr("Kabelbinder")}))
	require.NoError(t, repos.Products.Upsert(ctx, Product{ArticleID: "SS-1", Category: strPtr("Schrumpfschlauch")}))
	require.NoError(t, repos.Products.Upsert(ctx, Product{ArticleID: "KB-2", Category: strPtr("Kabelbinder")}))

	products, err := repos.Products.ListByCategory(ctx, "Kabelbinder")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "KB-1", products[0].ArticleID)
	assert.Equal(t, "KB-2", products[1].ArticleID)
}

func TestPropertyUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	prop := Property{
		ArticleID: "KB-1",
		Name:      "tensile_strength",
		Value:     "540",
		Unit:      strPtr("N"),
		Language:  LanguageDE,
	}
	require.NoError(t, repos.Properties.Upsert(ctx, prop))

	prop.Value = "1200"
	require.NoError(t, repos.Properties.Upsert(ctx, prop))

	props, err := repos.Properties.ListByArticle(ctx, "KB-1")
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "1200", props[0].Value)
	assert.Equal(t, "1200 N", props[0].FormattedValue())
}

func TestPropertyLanguagesAreSeparate(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	require.NoError(t, repos.Properties.Upsert(ctx, Property{
		ArticleID: "KB-1", Name: "color", Value: "Schwarz", Language: LanguageDE,
	}))
	require.NoError(t, repos.Properties.Upsert(ctx, Property{
		ArticleID: "KB-1", Name: "color", Value: "black", Language: LanguageEN,
	}))

	props, err := repos.Properties.ListByArticle(ctx, "KB-1")
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, LanguageDE, props[0].Language)
	assert.Equal(t, LanguageEN, props[1].Language)
}

func TestDefinitionAddIfAbsent(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	created, err := repos.Definitions.AddIfAbsent(ctx, "color", LanguageEN)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repos.Definitions.AddIfAbsent(ctx, "color", LanguageEN)
	require.NoError(t, err)
	assert.False(t, created)

	defs, err := repos.Definitions.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "color", defs[0].NameEN)
	assert.Equal(t, DataTypeString, defs[0].DataType)
	assert.NotEmpty(t, defs[0].ID)
}

func TestDefinitionUpsert(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	require.NoError(t, repos.Definitions.Upsert(ctx, PropertyDefinition{
		NameDE:   "Zugkraft",
		NameEN:   "tensile_strength",
		DataType: DataTypeNumber,
	}))

	// Matching either language name updates in place instead of duplicating.
	require.NoError(t, repos.Definitions.Upsert(ctx, PropertyDefinition{
		NameDE:       "Zugkraft",
		NameEN:       "tensile_strength",
		DataType:     DataTypeNumber,
		ExpectedUnit: strPtr("N"),
	}))

	defs, err := repos.Definitions.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.NotNil(t, defs[0].ExpectedUnit)
	assert.Equal(t, "N", *defs[0].ExpectedUnit)
}

func TestMappingUpsertLastWriteWins(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	m := AttributeMapping{
		OriginalName: "Zugbelastung",
		Language:     LanguageDE,
		StandardName: "tensile_strength",
		Confidence:   0.8,
	}
	require.NoError(t, repos.Mappings.Upsert(ctx, m))

	m.StandardName = "tensile_strength"
	m.Confidence = 1.0
	require.NoError(t, repos.Mappings.Upsert(ctx, m))

	mappings, err := repos.Mappings.List(ctx)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, 1.0, mappings[0].Confidence)
}

func TestOverrideTiers(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(t)

	require.NoError(t, repos.Overrides.SetForArticle(ctx, PropertyOverride{
		ArticleID: "KB-1", Name: "color", Value: "Blau", Language: LanguageDE,
	}))
	require.NoError(t, repos.Overrides.SetForArticle(ctx, PropertyOverride{
		ArticleID: "KB-1", Name: "color", Value: "Rot", Language: LanguageDE,
	}))
	require.NoError(t, repos.Overrides.SetForCategory(ctx, CategoryOverride{
		Category: "Kabelbinder", Name: "material", Value: "PA 6.6", Language: LanguageDE,
	}))

	articleOverrides, err := repos.Overrides.ListForArticle(ctx, "KB-1")
	require.NoError(t, err)
	require.Len(t, articleOverrides, 1)
	assert.Equal(t, "Rot", articleOverrides[0].Value)

	categoryOverrides, err := repos.Overrides.ListForCategory(ctx, "Kabelbinder")
	require.NoError(t, err)
	require.Len(t, categoryOverrides, 1)
	assert.Equal(t, "PA 6.6", categoryOverrides[0].Value)

	none, err := repos.Overrides.ListForArticle(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(OpenOptions{Driver: "oracle"})
	assert.Error(t, err)
}
