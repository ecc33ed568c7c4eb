package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kabelbinder-discount/PDM/internal/markup"
	"github.com/kabelbinder-discount/PDM/internal/observability"
	"github.com/kabelbinder-discount/PDM/internal/override"
	"github.com/kabelbinder-discount/PDM/internal/storage"
)

// placeholderColumn is the constant lead column the downstream shop
// importer requires on every row.
const placeholderColumn = "XTSOL"

// identityColumns is the fixed column prefix of the export schema.
var identityColumns = []string{
	placeholderColumn, "article_id", "name", "price", "stock", "category",
	"p_desc.de", "p_desc.en",
}

// Exporter runs the export job: load persisted properties, resolve
// overrides, render HTML and write the shop feed.
type Exporter struct {
	logger   *observability.Logger
	repos    *storage.Repositories
	resolver *override.Resolver
	reporter Reporter
}

// ExportRequest describes one export job.
type ExportRequest struct {
	Path           string
	Encoding       string
	Delimiter      string
	IncludeHTML    bool
	ApplyOverrides bool
}

// ExportResult summarizes a finished export job.
type ExportResult struct {
	JobID       uuid.UUID
	Products    int
	Skipped     int
	Columns     int
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// NewExporter creates an exporter. The reporter may be nil.
func NewExporter(logger *observability.Logger, repos *storage.Repositories, resolver *override.Resolver, reporter Reporter) *Exporter {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Exporter{logger: logger, repos: repos, resolver: resolver, reporter: reporter}
}

// exportRow is one assembled output row plus the property columns it uses,
// in insertion order.
type exportRow struct {
	fields      map[string]string
	propColumns []string
}

// Run executes the export. The output schema is the fixed identity columns
// followed by the union of property columns across all rows, so the feed
// header is stable regardless of which product contributes which property.
func (exp *Exporter) Run(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	jobID := uuid.New()
	logger := exp.logger.WithJob(jobID.String())
	result := &ExportResult{JobID: jobID, StartedAt: time.Now()}

	fail := func(err error) (*ExportResult, error) {
		exp.reporter.Finished(false, fmt.Sprintf("Export failed: %v", err), result.Products)
		return result, err
	}

	exp.reporter.Status(fmt.Sprintf("Exporting data to: %s", req.Path))

	products, err := exp.repos.Products.ListAll(ctx)
	if err != nil {
		return fail(fmt.Errorf("list products: %w", err))
	}

	var rows []exportRow
	var propColumns []string
	seenColumns := make(map[string]bool)

	for i, product := range products {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		exp.reporter.Progress(i+1, len(products))

		row, err := exp.buildRow(ctx, product, req)
		if err != nil {
			logger.Warn().Err(err).Str("article_id", product.ArticleID).Msg("product skipped")
			result.Skipped++
			observability.RowsFailed.WithLabelValues("export").Inc()
			continue
		}
		for _, col := range row.propColumns {
			if !seenColumns[col] {
				seenColumns[col] = true
				propColumns = append(propColumns, col)
			}
		}
		rows = append(rows, row)
		result.Products++
		observability.RowsProcessed.WithLabelValues("export").Inc()
	}

	header := append(append([]string{}, identityColumns...), propColumns...)
	if err := writeFeed(req, header, rows); err != nil {
		return fail(err)
	}

	result.Columns = len(header)
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	exp.reporter.Finished(true,
		fmt.Sprintf("Successfully exported %d products", result.Products), result.Products)
	logger.Info().
		Int("products", result.Products).
		Int("columns", result.Columns).
		Dur("duration", result.Duration).
		Msg("export finished")
	return result, nil
}

// buildRow assembles the output row for one product: effective properties
// per language, optional HTML blobs, and the prop_ columns.
func (exp *Exporter) buildRow(ctx context.Context, product storage.Product, req ExportRequest) (exportRow, error) {
	props, err := exp.repos.Properties.ListByArticle(ctx, product.ArticleID)
	if err != nil {
		return exportRow{}, fmt.Errorf("load properties: %w", err)
	}

	base := override.NewPropertySet()
	for _, p := range props {
		base.Set(override.Key{Name: p.Name, Language: p.Language}, p.FormattedValue())
	}

	effective := base
	if req.ApplyOverrides {
		effective, err = exp.resolver.Resolve(ctx, product.ArticleID, base)
		if err != nil {
			return exportRow{}, fmt.Errorf("resolve overrides: %w", err)
		}
	}

	var dePairs, enPairs []markup.Pair
	for _, key := range effective.Keys() {
		value, _ := effective.Get(key)
		pair := markup.Pair{Name: key.Name, Value: value}
		switch key.Language {
		case storage.LanguageDE:
			dePairs = append(dePairs, pair)
		case storage.LanguageEN:
			enPairs = append(enPairs, pair)
		}
	}

	row := exportRow{fields: map[string]string{
		placeholderColumn: placeholderColumn,
		"article_id":      product.ArticleID,
	}}
	if product.Name != nil {
		row.fields["name"] = *product.Name
	}
	if product.Price != nil {
		row.fields["price"] = strconv.FormatFloat(*product.Price, 'g', -1, 64)
	}
	if product.Stock != nil {
		row.fields["stock"] = strconv.Itoa(*product.Stock)
	}
	if product.Category != nil {
		row.fields["category"] = *product.Category
	}
	if req.IncludeHTML {
		row.fields["p_desc.de"] = markup.Render(dePairs)
		row.fields["p_desc.en"] = markup.Render(enPairs)
	}

	for _, p := range dePairs {
		col := "prop_" + p.Name
		row.fields[col] = p.Value
		row.propColumns = append(row.propColumns, col)
	}
	for _, p := range enPairs {
		col := "prop_" + p.Name + ".en"
		row.fields[col] = p.Value
		row.propColumns = append(row.propColumns, col)
	}
	return row, nil
}

// writeFeed writes header and rows as a delimited file in the configured
// encoding.
func writeFeed(req ExportRequest, header []string, rows []exportRow) error {
	f, err := os.Create(req.Path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	writer, err := encodingWriter(f, req.Encoding)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(writer)
	cw.Comma = rune(req.Delimiter[0])

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			record[i] = row.fields[col]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return f.Close()
}
