// Package markup extracts key/value attribute pairs from semi-structured
// HTML product descriptions and renders resolved properties back to HTML.
package markup

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Pair is one extracted attribute with its raw value.
type Pair struct {
	Name  string
	Value string
}

// PairList is an ordered set of pairs; the first occurrence of a name wins.
type PairList struct {
	pairs []Pair
	seen  map[string]bool
}

// NewPairList creates an empty pair list.
func NewPairList() *PairList {
	return &PairList{seen: make(map[string]bool)}
}

// Add appends the pair unless the name was already captured or either part
// is empty.
func (l *PairList) Add(name, value string) {
	if name == "" || value == "" || l.seen[name] {
		return
	}
	l.seen[name] = true
	l.pairs = append(l.pairs, Pair{Name: name, Value: value})
}

// Has reports whether a name was already captured.
func (l *PairList) Has(name string) bool { return l.seen[name] }

// Get returns the value for a name.
func (l *PairList) Get(name string) (string, bool) {
	if !l.seen[name] {
		return "", false
	}
	for _, p := range l.pairs {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Pairs returns the pairs in extraction order.
func (l *PairList) Pairs() []Pair { return l.pairs }

// Len returns the number of captured pairs.
func (l *PairList) Len() int { return len(l.pairs) }

// Fallback textual patterns for key/value pairs outside any table markup.
// \p{L} keeps umlauts in attribute names intact.
var (
	colonPattern  = regexp.MustCompile(`([\p{L}\p{N}_]+):\s*([^<]+)`)
	strongPattern = regexp.MustCompile(`<strong>([^<]+)</strong>\s*([^<]+)`)
)

// Extract parses an HTML fragment into an ordered name/value pair list.
//
// Tables are scanned first; rows with at least two cells contribute the
// first cell (trailing colon stripped) as the name and the second as the
// value. When the fragment has no table at all, bare <tr> elements are
// scanned the same way. Finally two textual patterns pick up pairs the table
// scan missed. Empty or table-less markup yields an empty list, not an error.
func Extract(html string) (*PairList, error) {
	list := NewPairList()
	if strings.TrimSpace(html) == "" {
		return list, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		// The HTML5 parser drops stray <tr> elements outside a table, so
		// bare rows only survive a re-parse inside a synthetic table.
		wrapped, err := goquery.NewDocumentFromReader(
			strings.NewReader("<table>" + html + "</table>"))
		if err == nil {
			extractRows(wrapped.Find("tr"), list)
		}
	} else {
		tables.Each(func(_ int, table *goquery.Selection) {
			extractRows(table.Find("tr"), list)
		})
	}

	for _, pattern := range []*regexp.Regexp{colonPattern, strongPattern} {
		for _, match := range pattern.FindAllStringSubmatch(html, -1) {
			list.Add(strings.TrimSpace(match[1]), strings.TrimSpace(match[2]))
		}
	}

	return list, nil
}

func extractRows(rows *goquery.Selection, list *PairList) {
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		name = strings.TrimRight(name, ":")
		value := strings.TrimSpace(cells.Eq(1).Text())
		list.Add(name, value)
	})
}
