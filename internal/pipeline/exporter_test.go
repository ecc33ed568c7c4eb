package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabelbinder-discount/PDM/internal/override"
	"github.com/kabelbinder-discount/PDM/internal/storage"
)

func seedExportData(t *testing.T, repos *storage.Repositories) {
	t.Helper()
	ctx := context.Background()

	name := "Kabelbinder 200x4,8"
	price := 12.5
	stock := 1500
	category := "Kabelbinder"
	require.NoError(t, repos.Products.Upsert(ctx, storage.Product{
		ArticleID: "A1",
		Name:      &name,
		Price:     &price,
		Stock:     &stock,
		Category:  &category,
	}))

	unit := "N"
	for _, p := range []storage.Property{
		{ArticleID: "A1", Name: "color", Value: "Rot", Language: storage.LanguageDE},
		{ArticleID: "A1", Name: "color", Value: "red", Language: storage.LanguageEN},
		{ArticleID: "A1", Name: "tensile_strength", Value: "1200", Unit: &unit, Language: storage.LanguageDE},
	} {
		require.NoError(t, repos.Properties.Upsert(ctx, p))
	}
}

func readExport(t *testing.T, path string) (header []string, rows [][]string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	cr := csv.NewReader(strings.NewReader(string(data)))
	cr.Comma = ';'
	records, err := cr.ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)

	return records[0], records[1:]
}

func fieldByColumn(header, record []string, column string) (string, bool) {
	for i, h := range header {
		if h == column {
			return record[i], true
		}
	}
	return "", false
}

func TestExportRun(t *testing.T) {
	ctx := context.Background()
	repos, _, logger := newTestEnv(t)
	seedExportData(t, repos)

	out := filepath.Join(t.TempDir(), "export.csv")
	exporter := NewExporter(logger, repos, override.NewResolver(repos), nil)
	result, err := exporter.Run(ctx, ExportRequest{
		Path: out, Encoding: "utf-8", Delimiter: ";",
		IncludeHTML: true, ApplyOverrides: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Products)

	header, rows := readExport(t, out)
	require.Len(t, rows, 1)

	assert.Equal(t, "XTSOL", header[0])
	assert.Equal(t, "XTSOL", rows[0][0])

	v, ok := fieldByColumn(header, rows[0], "article_id")
	require.True(t, ok)
	assert.Equal(t, "A1", v)

	v, _ = fieldByColumn(header, rows[0], "price")
	assert.Equal(t, "12.5", v)
	v, _ = fieldByColumn(header, rows[0], "stock")
	assert.Equal(t, "1500", v)

	v, ok = fieldByColumn(header, rows[0], "prop_color")
	require.True(t, ok)
	assert.Equal(t, "Rot", v)

	v, ok = fieldByColumn(header, rows[0], "prop_color.en")
	require.True(t, ok)
	assert.Equal(t, "red", v)

	// Unit travels with the value.
	v, _ = fieldByColumn(header, rows[0], "prop_tensile_strength")
	assert.Equal(t, "1200 N", v)

	v, _ = fieldByColumn(header, rows[0], "p_desc.de")
	assert.Contains(t, v, "<table>")
	assert.Contains(t, v, "<tr><td>color</td><td>Rot</td></tr>")
	v, _ = fieldByColumn(header, rows[0], "p_desc.en")
	assert.Contains(t, v, "<tr><td>color</td><td>red</td></tr>")
}

func TestExportAppliesOverrides(t *testing.T) {
	ctx := context.Background()
	repos, _, logger := newTestEnv(t)
	seedExportData(t, repos)

	require.NoError(t, repos.Overrides.SetForCategory(ctx, storage.CategoryOverride{
		Category: "Kabelbinder", Name: "color", Value: "Natur", Language: storage.LanguageDE,
	}))
	require.NoError(t, repos.Overrides.SetForArticle(ctx, storage.PropertyOverride{
		ArticleID: "A1", Name: "tensile_strength", Value: "540 N", Language: storage.LanguageDE,
	}))

	out := filepath.Join(t.TempDir(), "export.csv")
	exporter := NewExporter(logger, repos, override.NewResolver(repos), nil)
	_, err := exporter.Run(ctx, ExportRequest{
		Path: out, Encoding: "utf-8", Delimiter: ";",
		IncludeHTML: false, ApplyOverrides: true,
	})
	require.NoError(t, err)

	header, rows := readExport(t, out)
	require.Len(t, rows, 1)

	v, _ := fieldByColumn(header, rows[0], "prop_color")
	assert.Equal(t, "Natur", v)
	v, _ = fieldByColumn(header, rows[0], "prop_tensile_strength")
	assert.Equal(t, "540 N", v)

	// HTML columns stay empty when disabled.
	v, _ = fieldByColumn(header, rows[0], "p_desc.de")
	assert.Empty(t, v)
}

func TestExportWithoutOverrides(t *testing.T) {
	ctx := context.Background()
	repos, _, logger := newTestEnv(t)
	seedExportData(t, repos)

	require.NoError(t, repos.Overrides.SetForArticle(ctx, storage.PropertyOverride{
		ArticleID: "A1", Name: "color", Value: "Blau", Language: storage.LanguageDE,
	}))

	out := filepath.Join(t.TempDir(), "export.csv")
	exporter := NewExporter(logger, repos, override.NewResolver(repos), nil)
	_, err := exporter.Run(ctx, ExportRequest{
		Path: out, Encoding: "utf-8", Delimiter: ";", ApplyOverrides: false,
	})
	require.NoError(t, err)

	header, rows := readExport(t, out)
	v, _ := fieldByColumn(header, rows[0], "prop_color")
	assert.Equal(t, "Rot", v)
}

func TestExportUnionColumns(t *testing.T) {
	ctx := context.Background()
	repos, _, logger := newTestEnv(t)

	for _, seed := range []struct {
		article  string
		property string
		value    string
	}{
		{"A1", "color", "Rot"},
		{"A2", "material", "PA 6.6"},
	} {
		require.NoError(t, repos.Products.Upsert(ctx, storage.Product{ArticleID: seed.article}))
		require.NoError(t, repos.Properties.Upsert(ctx, storage.Property{
			ArticleID: seed.article,
			Name:      seed.property,
			Value:     seed.value,
			Language:  storage.LanguageDE,
		}))
	}

	out := filepath.Join(t.TempDir(), "export.csv")
	exporter := NewExporter(logger, repos, override.NewResolver(repos), nil)
	result, err := exporter.Run(ctx, ExportRequest{
		Path: out, Encoding: "utf-8", Delimiter: ";", ApplyOverrides: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Products)

	header, rows := readExport(t, out)
	require.Len(t, rows, 2)

	// Every row carries the union schema; absent properties are blank.
	v, ok := fieldByColumn(header, rows[0], "prop_material")
	require.True(t, ok)
	assert.Empty(t, v)
	v, _ = fieldByColumn(header, rows[1], "prop_material")
	assert.Equal(t, "PA 6.6", v)
	v, _ = fieldByColumn(header, rows[1], "prop_color")
	assert.Empty(t, v)

	assert.Equal(t, len(header), result.Columns)
}

func TestExportLatin1Encoding(t *testing.T) {
	ctx := context.Background()
	repos, _, logger := newTestEnv(t)

	require.NoError(t, repos.Products.Upsert(ctx, storage.Product{ArticleID: "A1"}))
	require.NoError(t, repos.Properties.Upsert(ctx, storage.Property{
		ArticleID: "A1", Name: "color", Value: "Grün", Language: storage.LanguageDE,
	}))

	out := filepath.Join(t.TempDir(), "export.csv")
	exporter := NewExporter(logger, repos, override.NewResolver(repos), nil)
	_, err := exporter.Run(ctx, ExportRequest{
		Path: out, Encoding: "iso-8859-1", Delimiter: ";", ApplyOverrides: true,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	// ü is a single 0xFC byte in ISO-8859-1, never the UTF-8 sequence.
	assert.True(t, bytes.Contains(data, []byte{'G', 'r', 0xFC, 'n'}))
	assert.False(t, bytes.Contains(data, []byte("Grün")))
}

func TestExportEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	repos, _, logger := newTestEnv(t)

	out := filepath.Join(t.TempDir(), "export.csv")
	exporter := NewExporter(logger, repos, override.NewResolver(repos), nil)
	result, err := exporter.Run(ctx, ExportRequest{
		Path: out, Encoding: "utf-8", Delimiter: ";",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Products)

	header, rows := readExport(t, out)
	assert.Empty(t, rows)
	assert.Equal(t, "XTSOL", header[0])
}
