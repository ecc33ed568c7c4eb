// Package normalize canonicalizes extracted attribute names and types their
// values. Normalization is pure: same inputs always produce the same result,
// and no I/O happens after package initialization.
package normalize

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kabelbinder-discount/PDM/internal/storage"
)

//go:embed vocab.yaml
var vocabData []byte

// vocab holds the static vendor-label dictionaries keyed by language.
var vocab map[string]map[string]string

func init() {
	if err := yaml.Unmarshal(vocabData, &vocab); err != nil {
		panic(fmt.Sprintf("normalize: parse embedded vocab.yaml: %v", err))
	}
}

// numericProperties are the standard names understood to carry a
// dimensioned numeric value.
var numericProperties = map[string]bool{
	"tensile_strength":    true,
	"max_bundle_diameter": true,
	"min_bundle_diameter": true,
	"length":              true,
}

var (
	numberUnitPattern  = regexp.MustCompile(`([0-9]+(?:[,.][0-9]+)?)\s*([A-Za-z]+)?`)
	temperaturePattern = regexp.MustCompile(`(-?\d+)\s*°C\s*bis\s*(\+?\d+)\s*°C`)
)

// Value is a normalized property value: either the raw text passed through
// or a parsed floating-point number.
type Value struct {
	Raw     string
	Number  float64
	Numeric bool
}

// String renders the value the way it is persisted.
func (v Value) String() string {
	if v.Numeric {
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	}
	return v.Raw
}

// Result is the outcome of normalizing one attribute.
type Result struct {
	StandardName string
	Value        Value
	Unit         string // empty when no unit applies
}

// StandardName canonicalizes an attribute name for one language. Known
// vendor labels translate via the static dictionary (German only); anything
// else is lowercased with spaces replaced by underscores.
func StandardName(name string, lang storage.Language) string {
	if lang == storage.LanguageDE {
		if std, ok := vocab["de"][name]; ok {
			return std
		}
	}
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// Normalize canonicalizes the attribute name and types its value.
//
// Dimensioned-numeric properties get a leading numeric token (comma or dot
// decimal separator) parsed to a float with an optional trailing alphabetic
// unit captured separately; an unparseable value passes through unchanged.
// temperature_resistance recognizes the German range idiom
// "-N °C bis +N °C" and normalizes it to "MIN to MAX" with unit °C.
// Every other property passes through as-is without a unit.
func Normalize(name, value string, lang storage.Language) Result {
	std := StandardName(name, lang)
	res := Result{
		StandardName: std,
		Value:        Value{Raw: value},
	}

	switch {
	case numericProperties[std]:
		match := numberUnitPattern.FindStringSubmatch(value)
		if match == nil {
			return res
		}
		number, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
		if err != nil {
			return res
		}
		res.Value.Number = number
		res.Value.Numeric = true
		res.Unit = match[2]
	case std == "temperature_resistance":
		match := temperaturePattern.FindStringSubmatch(value)
		if match == nil {
			return res
		}
		res.Value.Raw = match[1] + " to " + match[2]
		res.Unit = "°C"
	}

	return res
}
