// Package main provides the PDM command line entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kabelbinder-discount/PDM/internal/config"
	"github.com/kabelbinder-discount/PDM/internal/mapping"
	"github.com/kabelbinder-discount/PDM/internal/markup"
	"github.com/kabelbinder-discount/PDM/internal/observability"
	"github.com/kabelbinder-discount/PDM/internal/override"
	"github.com/kabelbinder-discount/PDM/internal/pipeline"
	"github.com/kabelbinder-discount/PDM/internal/storage"
)

var version = "dev"

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "pdm",
	Short: "Product data manager for shop CSV feeds",
	Long: `PDM imports semi-structured product description feeds, extracts and
normalizes attribute tables, manages attribute name mappings and property
overrides, and exports a shop-ready delimited feed.

Typical flow:
  pdm initdb
  pdm import --file products.csv
  pdm suggest --file products.csv
  pdm map "Zugbelastung" tensile_strength --lang de
  pdm override --article A1 --property color --value Blau --lang de
  pdm export --out feed.csv`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}
		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      cfg.Observability.LogFormat,
			ServiceName: "pdm",
		})

		if addr := cfg.Observability.MetricsAddr; addr != "" {
			observability.StartMetrics(addr, logger)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: built-in defaults + env vars)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newInitDBCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newSuggestCmd())
	rootCmd.AddCommand(newProductsCmd())
	rootCmd.AddCommand(newMapCmd())
	rootCmd.AddCommand(newOverrideCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openRepositories opens the configured database and wraps repositories
// around it.
func openRepositories() (*storage.Repositories, func(), error) {
	db, err := storage.Open(storage.OpenOptions{
		Driver:       cfg.Database.Driver,
		SQLitePath:   cfg.Database.SQLite.Path,
		PostgresDSN:  cfg.Database.Postgres.DSN,
		MaxOpenConns: cfg.Database.Postgres.MaxOpenConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return storage.NewRepositories(db), func() { _ = db.Close() }, nil
}

// newJobReporter builds the reporter stack for one job: terminal progress
// bar, structured status log, and the optional redis publisher.
func newJobReporter() (pipeline.Reporter, func()) {
	reporters := []pipeline.Reporter{
		&barReporter{},
		pipeline.LogReporter{Logger: logger},
	}
	cleanup := func() {}

	if cfg.Events.RedisAddr != "" {
		publisher := pipeline.NewRedisPublisher(pipeline.RedisOptions{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
			Channel:  cfg.Events.Channel,
		}, uuid.NewString(), logger)
		reporters = append(reporters, publisher)
		cleanup = func() { _ = publisher.Close() }
	}

	return pipeline.Combine(reporters...), cleanup
}

// barReporter renders row progress as a terminal bar. The bar is recreated
// whenever the total changes (detection phase, then the row loop).
type barReporter struct {
	bar   *progressbar.ProgressBar
	total int
}

func (b *barReporter) Progress(current, total int) {
	if b.bar == nil || total != b.total {
		b.total = total
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = b.bar.Set(current)
}

func (b *barReporter) Status(string) {}

func (b *barReporter) Finished(ok bool, message string, processed int) {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
	if ok {
		color.Green("%s", message)
	} else {
		color.Red("%s", message)
	}
}

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, closeDB, err := openRepositories()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := storage.InitSchema(cmd.Context(), repos.DB); err != nil {
				return err
			}
			color.Green("Database schema ready (%s)", cfg.Database.Driver)
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	var (
		file     string
		noDetect bool
		sample   int
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a product feed and persist normalized properties",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Hour)
			defer cancel()

			repos, closeDB, err := openRepositories()
			if err != nil {
				return err
			}
			defer closeDB()

			mapper, err := mapping.NewMapper(ctx, logger, repos)
			if err != nil {
				return err
			}

			sampleSize := cfg.Import.DetectionSampleSize
			if cmd.Flags().Changed("sample") {
				sampleSize = sample
			}

			reporter, cleanup := newJobReporter()
			defer cleanup()
			importer := pipeline.NewImporter(logger, repos, mapper, reporter)

			result, err := importer.Run(ctx, pipeline.ImportRequest{
				Path:                file,
				Encoding:            cfg.Import.Encoding,
				Delimiter:           cfg.Import.Delimiter,
				DetectNewProperties: cfg.Import.DetectNewProperties && !noDetect,
				DetectionSampleSize: sampleSize,
			})
			if err != nil {
				return err
			}
			if result.Skipped > 0 {
				color.Yellow("%d rows skipped, see log for details", result.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "source feed (.csv or .xlsx)")
	cmd.Flags().BoolVar(&noDetect, "no-detect", false, "skip new-property detection")
	cmd.Flags().IntVar(&sample, "sample", 0, "bound new-property detection to the first N rows (0 = all)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		out         string
		noHTML      bool
		noOverrides bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the shop feed with resolved overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Hour)
			defer cancel()

			repos, closeDB, err := openRepositories()
			if err != nil {
				return err
			}
			defer closeDB()

			reporter, cleanup := newJobReporter()
			defer cleanup()

			exporter := pipeline.NewExporter(logger, repos, override.NewResolver(repos), reporter)
			result, err := exporter.Run(ctx, pipeline.ExportRequest{
				Path:           out,
				Encoding:       cfg.Export.Encoding,
				Delimiter:      cfg.Export.Delimiter,
				IncludeHTML:    cfg.Export.IncludeHTML && !noHTML,
				ApplyOverrides: !noOverrides,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d products, %d columns: %s\n", result.Products, result.Columns, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output feed path")
	cmd.Flags().BoolVar(&noHTML, "no-html", false, "leave p_desc columns empty")
	cmd.Flags().BoolVar(&noOverrides, "no-overrides", false, "export raw values without override resolution")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newDetectCmd() *cobra.Command {
	var (
		file   string
		sample int
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Scan a feed for properties missing from the vocabulary",
		Long: `Extracts and normalizes attribute names from the source markup and
registers a definition stub for every standard name not yet present in the
controlled vocabulary. Nothing else is imported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, closeDB, err := openRepositories()
			if err != nil {
				return err
			}
			defer closeDB()

			mapper, err := mapping.NewMapper(cmd.Context(), logger, repos)
			if err != nil {
				return err
			}

			spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
				spinner.WithWriter(os.Stderr))
			spin.Suffix = " detecting new properties..."
			spin.Start()

			importer := pipeline.NewImporter(logger, repos, mapper, pipeline.LogReporter{Logger: logger})
			created, err := importer.Detect(cmd.Context(), pipeline.ImportRequest{
				Path:                file,
				Encoding:            cfg.Import.Encoding,
				Delimiter:           cfg.Import.Delimiter,
				DetectionSampleSize: sample,
			})
			spin.Stop()
			if err != nil {
				return err
			}
			color.Green("%d new properties registered", created)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "source feed (.csv or .xlsx)")
	cmd.Flags().IntVar(&sample, "sample", 0, "bound the scan to the first N rows (0 = all)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSuggestCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest standard names for unmapped attributes in a feed",
		Long: `Scans the source markup for attribute names without a stored mapping and
prints fuzzy-match suggestions against the controlled vocabulary. The
similarity heuristic is approximate; suggestions are never applied
automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repos, closeDB, err := openRepositories()
			if err != nil {
				return err
			}
			defer closeDB()

			mapper, err := mapping.NewMapper(ctx, logger, repos)
			if err != nil {
				return err
			}

			spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
				spinner.WithWriter(os.Stderr))
			spin.Suffix = " scanning source markup..."
			spin.Start()

			names, err := collectAttributeNames(file, cfg.Import.Encoding, cfg.Import.Delimiter)
			spin.Stop()
			if err != nil {
				return err
			}

			suggestions, err := mapper.SuggestMappings(ctx, names)
			if err != nil {
				return err
			}

			if len(suggestions) == 0 {
				color.Green("All attribute names are mapped.")
				return nil
			}
			for name, matches := range suggestions {
				if len(matches) == 0 {
					fmt.Printf("%-35s (no suggestion)\n", name)
					continue
				}
				fmt.Printf("%s\n", color.CyanString(name))
				for _, m := range matches {
					fmt.Printf("    %-30s %.2f\n", m.StandardName, m.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "source feed (.csv or .xlsx)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newMapCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "map <original-name> <standard-name>",
		Short: "Store an attribute name mapping",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repos, closeDB, err := openRepositories()
			if err != nil {
				return err
			}
			defer closeDB()

			mapper, err := mapping.NewMapper(ctx, logger, repos)
			if err != nil {
				return err
			}
			if err := mapper.AddMapping(ctx, args[0], args[1], storage.Language(lang)); err != nil {
				return err
			}
			color.Green("Mapped %q -> %q (%s)", args[0], args[1], lang)
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "de", "language of the original name (de or en)")
	return cmd
}

func newOverrideCmd() *cobra.Command {
	var (
		article  string
		category string
		property string
		value    string
		lang     string
	)

	cmd := &cobra.Command{
		Use:   "override",
		Short: "Set an article- or category-level property override",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (article == "") == (category == "") {
				return fmt.Errorf("exactly one of --article or --category is required")
			}

			repos, closeDB, err := openRepositories()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := cmd.Context()
			if article != "" {
				err = repos.Overrides.SetForArticle(ctx, storage.PropertyOverride{
					ArticleID: article,
					Name:      property,
					Value:     value,
					Language:  storage.Language(lang),
				})
			} else {
				err = repos.Overrides.SetForCategory(ctx, storage.CategoryOverride{
					Category: category,
					Name:     property,
					Value:    value,
					Language: storage.Language(lang),
				})
			}
			if err != nil {
				return err
			}
			color.Green("Override stored")
			return nil
		},
	}

	cmd.Flags().StringVar(&article, "article", "", "article id scope")
	cmd.Flags().StringVar(&category, "category", "", "category scope")
	cmd.Flags().StringVarP(&property, "property", "p", "", "standard property name")
	cmd.Flags().StringVar(&value, "value", "", "override value")
	cmd.Flags().StringVarP(&lang, "lang", "l", "de", "language (de or en)")
	_ = cmd.MarkFlagRequired("property")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newProductsCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List imported products",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, closeDB, err := openRepositories()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := cmd.Context()
			var products []storage.Product
			if category != "" {
				products, err = repos.Products.ListByCategory(ctx, category)
			} else {
				products, err = repos.Products.ListAll(ctx)
			}
			if err != nil {
				return err
			}

			for _, p := range products {
				name := ""
				if p.Name != nil {
					name = *p.Name
				}
				cat := ""
				if p.Category != nil {
					cat = *p.Category
				}
				fmt.Printf("%-20s %-40s %s\n", p.ArticleID, name, cat)
			}
			fmt.Printf("%d products\n", len(products))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "restrict to one category")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the PDM version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pdm %s\n", version)
		},
	}
}

// collectAttributeNames extracts the distinct raw attribute names from all
// description columns of a feed, in first-seen order.
func collectAttributeNames(path, encoding, delimiter string) ([]string, error) {
	table, err := pipeline.ReadSource(path, encoding, delimiter)
	if err != nil {
		return nil, err
	}

	var names []string
	seen := make(map[string]bool)
	for _, row := range table.Rows {
		for _, column := range []string{"p_desc.de", "p_desc.en"} {
			html, ok := row.Get(column)
			if !ok {
				continue
			}
			pairs, err := markup.Extract(html)
			if err != nil {
				continue
			}
			for _, pair := range pairs.Pairs() {
				if !seen[pair.Name] {
					seen[pair.Name] = true
					names = append(names, pair.Name)
				}
			}
		}
	}
	return names, nil
}
