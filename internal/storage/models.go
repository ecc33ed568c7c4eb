// Package storage provides database models and repositories for the PDM tool.
package storage

// Language identifies one of the supported catalog languages.
type Language string

const (
	LanguageDE Language = "de"
	LanguageEN Language = "en"
)

// Languages returns all supported languages in a fixed order.
func Languages() []Language {
	return []Language{LanguageDE, LanguageEN}
}

// DataType classifies property definition value types.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeBoolean DataType = "boolean"
)

// Product is a catalog article. All fields except the article id are
// optional; a re-import merges only the fields present in the source row.
type Product struct {
	ArticleID string
	Name      *string
	Price     *float64
	Stock     *int
	Category  *string
}

// Property is a single fact about a product in one language. The value is
// always stored as text; typed interpretation happens during normalization.
type Property struct {
	ArticleID string
	Name      string
	Value     string
	Unit      *string
	Language  Language
}

// FormattedValue returns the value with the unit appended when present.
func (p Property) FormattedValue() string {
	if p.Unit != nil && *p.Unit != "" {
		return p.Value + " " + *p.Unit
	}
	return p.Value
}

// PropertyDefinition is an entry in the controlled vocabulary: the canonical
// names of a standardized property in each language plus its declared type.
type PropertyDefinition struct {
	ID           string
	NameDE       string
	NameEN       string
	DataType     DataType
	ExpectedUnit *string
}

// Names returns the non-empty canonical names of the definition.
func (d PropertyDefinition) Names() []string {
	var names []string
	if d.NameDE != "" {
		names = append(names, d.NameDE)
	}
	if d.NameEN != "" {
		names = append(names, d.NameEN)
	}
	return names
}

// AttributeMapping aliases a vendor-specific attribute name to a standard
// name. Human-entered mappings carry confidence 1.0, heuristic ones less.
type AttributeMapping struct {
	OriginalName string
	Language     Language
	StandardName string
	Confidence   float64
}

// PropertyOverride supersedes a stored property value for a single article.
type PropertyOverride struct {
	ArticleID string
	Name      string
	Value     string
	Language  Language
}

// CategoryOverride supersedes stored property values for every article in a
// category.
type CategoryOverride struct {
	Category string
	Name     string
	Value    string
	Language Language
}
