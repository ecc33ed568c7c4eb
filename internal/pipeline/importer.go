package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kabelbinder-discount/PDM/internal/mapping"
	"github.com/kabelbinder-discount/PDM/internal/markup"
	"github.com/kabelbinder-discount/PDM/internal/normalize"
	"github.com/kabelbinder-discount/PDM/internal/observability"
	"github.com/kabelbinder-discount/PDM/internal/storage"
)

// articleIDColumns are the recognized article-id header names, in priority
// order. The XTSOL placeholder column is never an id.
var articleIDColumns = []string{"p_model", "article_id", "XTINR"}

// descriptionColumns maps each language to its markup source column.
var descriptionColumns = map[storage.Language]string{
	storage.LanguageDE: "p_desc.de",
	storage.LanguageEN: "p_desc.en",
}

// Importer runs the CSV/XLSX import job: per row, extract markup, map
// attribute names, normalize values and persist.
type Importer struct {
	logger   *observability.Logger
	repos    *storage.Repositories
	mapper   *mapping.Mapper
	reporter Reporter
}

// ImportRequest describes one import job.
type ImportRequest struct {
	Path                string
	Encoding            string
	Delimiter           string
	DetectNewProperties bool
	DetectionSampleSize int // 0 scans every row
}

// ImportResult summarizes a finished import job.
type ImportResult struct {
	JobID             uuid.UUID
	Processed         int
	Skipped           int
	PropertiesWritten int
	NewDefinitions    int
	StartedAt         time.Time
	CompletedAt       time.Time
	Duration          time.Duration
}

// NewImporter creates an importer. The reporter may be nil.
func NewImporter(logger *observability.Logger, repos *storage.Repositories, mapper *mapping.Mapper, reporter Reporter) *Importer {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Importer{logger: logger, repos: repos, mapper: mapper, reporter: reporter}
}

// Run executes the import. A fatal setup problem (unreadable file, no
// description column, no article-id column) aborts the job; a failing row is
// logged, counted and skipped while the job continues. Rows already
// persisted stay persisted when a later row aborts the job via context
// cancellation, which is honored between rows only.
func (imp *Importer) Run(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	jobID := uuid.New()
	logger := imp.logger.WithJob(jobID.String())
	result := &ImportResult{JobID: jobID, StartedAt: time.Now()}

	fail := func(err error) (*ImportResult, error) {
		imp.reporter.Finished(false, fmt.Sprintf("Import failed: %v", err), result.Processed)
		return result, err
	}

	imp.reporter.Status("Initializing database...")
	if err := storage.InitSchema(ctx, imp.repos.DB); err != nil {
		return fail(err)
	}

	imp.reporter.Status(fmt.Sprintf("Reading source file: %s", req.Path))
	table, err := ReadSource(req.Path, req.Encoding, req.Delimiter)
	if err != nil {
		return fail(err)
	}

	total := len(table.Rows)
	imp.reporter.Status(fmt.Sprintf("Found %d products to process", total))

	if !table.HasColumn(descriptionColumns[storage.LanguageDE]) &&
		!table.HasColumn(descriptionColumns[storage.LanguageEN]) {
		return fail(fmt.Errorf("neither p_desc.de nor p_desc.en column found in source"))
	}

	idColumn := resolveArticleIDColumn(table)
	if idColumn == "" {
		return fail(fmt.Errorf("could not identify article id column (tried %s)",
			strings.Join(articleIDColumns, ", ")))
	}
	logger.Debug().Str("column", idColumn).Msg("resolved article id column")

	if req.DetectNewProperties {
		created, err := imp.detectNewProperties(ctx, table, req.DetectionSampleSize)
		if err != nil {
			return fail(fmt.Errorf("detect new properties: %w", err))
		}
		result.NewDefinitions = created
	}

	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		imp.reporter.Progress(i+1, total)

		articleID, ok := row.Get(idColumn)
		if !ok {
			logger.Warn().Int("row", i+1).Msg("row without article id skipped")
			result.Skipped++
			observability.RowsFailed.WithLabelValues("import").Inc()
			continue
		}

		imp.reporter.Status(fmt.Sprintf("Processing article %s", articleID))
		written, err := imp.importRow(ctx, articleID, row)
		if err != nil {
			logger.Warn().Err(err).Str("article_id", articleID).Msg("row skipped")
			result.Skipped++
			observability.RowsFailed.WithLabelValues("import").Inc()
			continue
		}

		result.Processed++
		result.PropertiesWritten += written
		observability.RowsProcessed.WithLabelValues("import").Inc()
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	imp.reporter.Finished(true,
		fmt.Sprintf("Successfully imported %d products", result.Processed), result.Processed)
	logger.Info().
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("properties", result.PropertiesWritten).
		Dur("duration", result.Duration).
		Msg("import finished")
	return result, nil
}

// importRow persists one product and its extracted properties. Any error is
// contained to this row.
func (imp *Importer) importRow(ctx context.Context, articleID string, row Row) (int, error) {
	product := storage.Product{ArticleID: articleID}
	if v, ok := row.Get("p_name"); ok {
		product.Name = &v
	}
	if price, ok := parsePrice(row); ok {
		product.Price = &price
	}
	if stock, ok := parseStock(row); ok {
		product.Stock = &stock
	}
	if v, ok := row.Get("p_category"); ok {
		product.Category = &v
	} else if v, ok := row.Get("category"); ok {
		product.Category = &v
	}

	if err := imp.repos.Products.Upsert(ctx, product); err != nil {
		return 0, fmt.Errorf("upsert product: %w", err)
	}

	written := 0
	for _, lang := range storage.Languages() {
		html, ok := row.Get(descriptionColumns[lang])
		if !ok {
			continue
		}
		pairs, err := markup.Extract(html)
		if err != nil {
			return written, fmt.Errorf("extract %s markup: %w", lang, err)
		}
		for _, pair := range pairs.Pairs() {
			mapped := imp.mapper.GetStandardName(pair.Name, lang)
			res := normalize.Normalize(mapped, pair.Value, lang)

			prop := storage.Property{
				ArticleID: articleID,
				Name:      res.StandardName,
				Value:     res.Value.String(),
				Language:  lang,
			}
			if res.Unit != "" {
				unit := res.Unit
				prop.Unit = &unit
			}
			if err := imp.repos.Properties.Upsert(ctx, prop); err != nil {
				return written, fmt.Errorf("upsert property %s: %w", res.StandardName, err)
			}
			written++
			observability.PropertiesWritten.WithLabelValues(string(lang)).Inc()
		}
	}
	return written, nil
}

// Detect runs new-property detection over a source file without importing
// anything else. It returns the number of definition stubs created.
func (imp *Importer) Detect(ctx context.Context, req ImportRequest) (int, error) {
	if err := storage.InitSchema(ctx, imp.repos.DB); err != nil {
		return 0, err
	}
	table, err := ReadSource(req.Path, req.Encoding, req.Delimiter)
	if err != nil {
		return 0, err
	}
	return imp.detectNewProperties(ctx, table, req.DetectionSampleSize)
}

// detectNewProperties scans source markup for standard names missing from
// the controlled vocabulary and registers definition stubs for them. A
// sample size above zero bounds the scan for large feeds.
func (imp *Importer) detectNewProperties(ctx context.Context, table *Table, sampleSize int) (int, error) {
	imp.reporter.Status("Detecting new properties...")

	defs, err := imp.repos.Definitions.List(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool)
	for _, d := range defs {
		for _, name := range d.Names() {
			known[name] = true
		}
	}

	rows := table.Rows
	if sampleSize > 0 && sampleSize < len(rows) {
		rows = rows[:sampleSize]
	}

	type detected struct {
		name string
		lang storage.Language
	}
	var found []detected
	seen := make(map[detected]bool)

	for i, row := range rows {
		if i%10 == 0 {
			imp.reporter.Progress(i, len(rows))
		}
		for _, lang := range storage.Languages() {
			html, ok := row.Get(descriptionColumns[lang])
			if !ok {
				continue
			}
			pairs, err := markup.Extract(html)
			if err != nil {
				continue
			}
			for _, pair := range pairs.Pairs() {
				std := normalize.StandardName(pair.Name, lang)
				d := detected{name: std, lang: lang}
				if !known[std] && !seen[d] {
					seen[d] = true
					found = append(found, d)
				}
			}
		}
	}

	created := 0
	for _, d := range found {
		added, err := imp.repos.Definitions.AddIfAbsent(ctx, d.name, d.lang)
		if err != nil {
			imp.logger.Warn().Err(err).Str("name", d.name).Msg("failed to register property definition")
			continue
		}
		if added {
			created++
			imp.reporter.Status(fmt.Sprintf("New property detected: %s (%s)", d.name, d.lang))
		}
	}

	imp.reporter.Status(fmt.Sprintf("Total %d new properties detected.", len(found)))
	return created, nil
}

// resolveArticleIDColumn picks the first recognized id column present in
// the header.
func resolveArticleIDColumn(table *Table) string {
	for _, candidate := range articleIDColumns {
		if table.HasColumn(candidate) {
			return candidate
		}
	}
	return ""
}

func parsePrice(row Row) (float64, bool) {
	v, ok := row.Get("p_price")
	if !ok {
		v, ok = row.Get("p_priceNoTax")
	}
	if !ok {
		return 0, false
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func parseStock(row Row) (int, bool) {
	v, ok := row.Get("p_stock")
	if !ok {
		return 0, false
	}
	// Some feeds export stock as a float.
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
