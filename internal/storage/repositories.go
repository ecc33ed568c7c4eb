package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Repositories bundles all repositories over one database handle.
type Repositories struct {
	DB          DB
	Products    *ProductRepository
	Properties  *PropertyRepository
	Definitions *DefinitionRepository
	Mappings    *MappingRepository
	Overrides   *OverrideRepository
}

// NewRepositories creates all repositories over the given handle.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		DB:          db,
		Products:    NewProductRepository(db),
		Properties:  NewPropertyRepository(db),
		Definitions: NewDefinitionRepository(db),
		Mappings:    NewMappingRepository(db),
		Overrides:   NewOverrideRepository(db),
	}
}

// ProductRepository handles product upserts and queries.
type ProductRepository struct {
	db DB
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Upsert inserts the product or merges it into an existing row. Only non-nil
// fields overwrite stored values; absent source columns never clear data.
func (r *ProductRepository) Upsert(ctx context.Context, p Product) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE article_id = $1)`, p.ArticleID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check product %s: %w", p.ArticleID, err)
	}

	if !exists {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO products (article_id, name, price, stock, category)
			 VALUES ($1, $2, $3, $4, $5)`,
			p.ArticleID, p.Name, p.Price, p.Stock, p.Category,
		)
		return err
	}

	var sets []string
	var args []interface{}
	n := 1
	add := func(col string, v interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
		n++
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Price != nil {
		add("price", *p.Price)
	}
	if p.Stock != nil {
		add("stock", *p.Stock)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, p.ArticleID)
	query := fmt.Sprintf(`UPDATE products SET %s WHERE article_id = $%d`,
		strings.Join(sets, ", "), n)
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// GetByID retrieves one product.
func (r *ProductRepository) GetByID(ctx context.Context, articleID string) (*Product, error) {
	p := &Product{}
	err := r.db.QueryRowContext(ctx,
		`SELECT article_id, name, price, stock, category FROM products WHERE article_id = $1`,
		articleID,
	).Scan(&p.ArticleID, &p.Name, &p.Price, &p.Stock, &p.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// Category returns the product's category, or "" when the product is
// unknown or has none.
func (r *ProductRepository) Category(ctx context.Context, articleID string) (string, error) {
	p, err := r.GetByID(ctx, articleID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if p.Category == nil {
		return "", nil
	}
	return *p.Category, nil
}

// ListAll returns every product ordered by article id.
func (r *ProductRepository) ListAll(ctx context.Context) ([]Product, error) {
	return r.list(ctx,
		`SELECT article_id, name, price, stock, category FROM products ORDER BY article_id`)
}

// ListByCategory returns the products of one category.
func (r *ProductRepository) ListByCategory(ctx context.Context, category string) ([]Product, error) {
	return r.list(ctx,
		`SELECT article_id, name, price, stock, category FROM products WHERE category = $1 ORDER BY article_id`,
		category)
}

func (r *ProductRepository) list(ctx context.Context, query string, args ...interface{}) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ArticleID, &p.Name, &p.Price, &p.Stock, &p.Category); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// PropertyRepository handles property upserts and queries.
type PropertyRepository struct {
	db DB
}

// NewPropertyRepository creates a new property repository.
func NewPropertyRepository(db DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// Upsert stores the property, replacing any prior value for the same
// (article, name, language) triple.
func (r *PropertyRepository) Upsert(ctx context.Context, p Property) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM properties
		 WHERE article_id = $1 AND property_name = $2 AND language = $3)`,
		p.ArticleID, p.Name, p.Language,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check property %s/%s: %w", p.ArticleID, p.Name, err)
	}

	if exists {
		_, err = r.db.ExecContext(ctx,
			`UPDATE properties SET property_value = $1, property_unit = $2
			 WHERE article_id = $3 AND property_name = $4 AND language = $5`,
			p.Value, p.Unit, p.ArticleID, p.Name, p.Language,
		)
	} else {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO properties (article_id, property_name, property_value, property_unit, language)
			 VALUES ($1, $2, $3, $4, $5)`,
			p.ArticleID, p.Name, p.Value, p.Unit, p.Language,
		)
	}
	return err
}

// ListByArticle returns all stored properties of one article, ordered by
// name then language so exports are stable.
func (r *PropertyRepository) ListByArticle(ctx context.Context, articleID string) ([]Property, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id, property_name, property_value, property_unit, language
		 FROM properties WHERE article_id = $1 ORDER BY property_name, language`,
		articleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var props []Property
	for rows.Next() {
		var p Property
		if err := rows.Scan(&p.ArticleID, &p.Name, &p.Value, &p.Unit, &p.Language); err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

// DefinitionRepository handles the controlled property vocabulary.
type DefinitionRepository struct {
	db DB
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

// List returns all property definitions.
func (r *DefinitionRepository) List(ctx context.Context) ([]PropertyDefinition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name_de, name_en, data_type, expected_unit FROM property_definitions ORDER BY name_de, name_en`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []PropertyDefinition
	for rows.Next() {
		var d PropertyDefinition
		if err := rows.Scan(&d.ID, &d.NameDE, &d.NameEN, &d.DataType, &d.ExpectedUnit); err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// Upsert inserts or updates a full definition. An existing row matches when
// either language name matches.
func (r *DefinitionRepository) Upsert(ctx context.Context, d PropertyDefinition) error {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM property_definitions WHERE (name_de = $1 AND name_de <> '') OR (name_en = $2 AND name_en <> '')`,
		d.NameDE, d.NameEN,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO property_definitions (id, name_de, name_en, data_type, expected_unit)
			 VALUES ($1, $2, $3, $4, $5)`,
			d.ID, d.NameDE, d.NameEN, d.DataType, d.ExpectedUnit,
		)
		return err
	case err != nil:
		return err
	default:
		_, err = r.db.ExecContext(ctx,
			`UPDATE property_definitions SET name_de = $1, name_en = $2, data_type = $3, expected_unit = $4
			 WHERE id = $5`,
			d.NameDE, d.NameEN, d.DataType, d.ExpectedUnit, id,
		)
		return err
	}
}

// AddIfAbsent registers a definition stub for a newly detected property name
// in one language slot, defaulting to the string type. It reports whether a
// new row was created.
func (r *DefinitionRepository) AddIfAbsent(ctx context.Context, name string, lang Language) (bool, error) {
	col := "name_en"
	if lang == LanguageDE {
		col = "name_de"
	}

	var id string
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM property_definitions WHERE %s = $1`, col), name,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		nameDE, nameEN := "", name
		if lang == LanguageDE {
			nameDE, nameEN = name, ""
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO property_definitions (id, name_de, name_en, data_type, expected_unit)
			 VALUES ($1, $2, $3, $4, NULL)`,
			uuid.New().String(), nameDE, nameEN, DataTypeString,
		)
		if err != nil {
			return false, err
		}
		return true, nil
	case err != nil:
		return false, err
	default:
		return false, nil
	}
}

// MappingRepository handles persisted attribute name aliases.
type MappingRepository struct {
	db DB
}

// NewMappingRepository creates a new mapping repository.
func NewMappingRepository(db DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// List returns all stored mappings.
func (r *MappingRepository) List(ctx context.Context) ([]AttributeMapping, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT original_name, language, standard_name, confidence FROM attribute_mappings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []AttributeMapping
	for rows.Next() {
		var m AttributeMapping
		if err := rows.Scan(&m.OriginalName, &m.Language, &m.StandardName, &m.Confidence); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// Upsert stores a mapping; last write wins per (original_name, language).
func (r *MappingRepository) Upsert(ctx context.Context, m AttributeMapping) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM attribute_mappings WHERE original_name = $1 AND language = $2)`,
		m.OriginalName, m.Language,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check mapping %s: %w", m.OriginalName, err)
	}

	if exists {
		_, err = r.db.ExecContext(ctx,
			`UPDATE attribute_mappings SET standard_name = $1, confidence = $2
			 WHERE original_name = $3 AND language = $4`,
			m.StandardName, m.Confidence, m.OriginalName, m.Language,
		)
	} else {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO attribute_mappings (original_name, language, standard_name, confidence)
			 VALUES ($1, $2, $3, $4)`,
			m.OriginalName, m.Language, m.StandardName, m.Confidence,
		)
	}
	return err
}

// OverrideRepository handles both override tiers.
type OverrideRepository struct {
	db DB
}

// NewOverrideRepository creates a new override repository.
func NewOverrideRepository(db DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// SetForArticle upserts an article-level override.
func (r *OverrideRepository) SetForArticle(ctx context.Context, o PropertyOverride) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM property_overrides
		 WHERE article_id = $1 AND property_name = $2 AND language = $3)`,
		o.ArticleID, o.Name, o.Language,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check article override %s/%s: %w", o.ArticleID, o.Name, err)
	}

	if exists {
		_, err = r.db.ExecContext(ctx,
			`UPDATE property_overrides SET override_value = $1
			 WHERE article_id = $2 AND property_name = $3 AND language = $4`,
			o.Value, o.ArticleID, o.Name, o.Language,
		)
	} else {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO property_overrides (article_id, property_name, override_value, language)
			 VALUES ($1, $2, $3, $4)`,
			o.ArticleID, o.Name, o.Value, o.Language,
		)
	}
	return err
}

// SetForCategory upserts a category-level override.
func (r *OverrideRepository) SetForCategory(ctx context.Context, o CategoryOverride) error {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM category_property_overrides
		 WHERE category = $1 AND property_name = $2 AND language = $3)`,
		o.Category, o.Name, o.Language,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check category override %s/%s: %w", o.Category, o.Name, err)
	}

	if exists {
		_, err = r.db.ExecContext(ctx,
			`UPDATE category_property_overrides SET override_value = $1
			 WHERE category = $2 AND property_name = $3 AND language = $4`,
			o.Value, o.Category, o.Name, o.Language,
		)
	} else {
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO category_property_overrides (category, property_name, override_value, language)
			 VALUES ($1, $2, $3, $4)`,
			o.Category, o.Name, o.Value, o.Language,
		)
	}
	return err
}

// ListForArticle returns all article-level overrides for one article.
func (r *OverrideRepository) ListForArticle(ctx context.Context, articleID string) ([]PropertyOverride, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id, property_name, override_value, language
		 FROM property_overrides WHERE article_id = $1 ORDER BY property_name, language`,
		articleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []PropertyOverride
	for rows.Next() {
		var o PropertyOverride
		if err := rows.Scan(&o.ArticleID, &o.Name, &o.Value, &o.Language); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// ListForCategory returns all category-level overrides for one category.
func (r *OverrideRepository) ListForCategory(ctx context.Context, category string) ([]CategoryOverride, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, property_name, override_value, language
		 FROM category_property_overrides WHERE category = $1 ORDER BY property_name, language`,
		category,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []CategoryOverride
	for rows.Next() {
		var o CategoryOverride
		if err := rows.Scan(&o.Category, &o.Name, &o.Value, &o.Language); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
