package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTable(t *testing.T) {
	html := `<table>
		<tr><td>Farbe:</td><td>Schwarz</td></tr>
		<tr><td>Zugkraft</td><td>1200 N</td></tr>
		<tr><th>Material</th><td>PA 6.6</td></tr>
	</table>`

	list, err := Extract(html)
	require.NoError(t, err)
	require.Equal(t, 3, list.Len())

	pairs := list.Pairs()
	assert.Equal(t, Pair{Name: "Farbe", Value: "Schwarz"}, pairs[0])
	assert.Equal(t, Pair{Name: "Zugkraft", Value: "1200 N"}, pairs[1])
	assert.Equal(t, Pair{Name: "Material", Value: "PA 6.6"}, pairs[2])
}

func TestExtractBareRows(t *testing.T) {
	// No <table> wrapper at all; bare rows are still scanned.
	html := `<tr><td>Länge</td><td>200 mm</td></tr><tr><td>Farbe</td><td>Natur</td></tr>`

	list, err := Extract(html)
	require.NoError(t, err)

	v, ok := list.Get("Länge")
	require.True(t, ok)
	assert.Equal(t, "200 mm", v)
	v, ok = list.Get("Farbe")
	require.True(t, ok)
	assert.Equal(t, "Natur", v)
}

func TestExtractTextualPatterns(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		key   string
		value string
	}{
		{
			name:  "colon pattern",
			html:  `<p>Farbe: Schwarz</p>`,
			key:   "Farbe",
			value: "Schwarz",
		},
		{
			name:  "colon pattern with umlaut",
			html:  `<p>Länge: 300 mm</p>`,
			key:   "Länge",
			value: "300 mm",
		},
		{
			name:  "strong pattern",
			html:  `<div><strong>Material</strong> Polyamid</div>`,
			key:   "Material",
			value: "Polyamid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := Extract(tt.html)
			require.NoError(t, err)

			v, ok := list.Get(tt.key)
			require.True(t, ok, "expected pair %q", tt.key)
			assert.Equal(t, tt.value, v)
		})
	}
}

func TestExtractFirstOccurrenceWins(t *testing.T) {
	html := `<table>
		<tr><td>Farbe</td><td>Schwarz</td></tr>
		<tr><td>Farbe</td><td>Weiß</td></tr>
	</table>`

	list, err := Extract(html)
	require.NoError(t, err)
	require.Equal(t, 1, list.Len())

	v, _ := list.Get("Farbe")
	assert.Equal(t, "Schwarz", v)
}

func TestExtractEmptyInput(t *testing.T) {
	for _, html := range []string{"", "   ", "<p>plain prose without attributes</p>"} {
		list, err := Extract(html)
		require.NoError(t, err)
		assert.Equal(t, 0, list.Len())
	}
}

func TestExtractSkipsIncompleteRows(t *testing.T) {
	html := `<table>
		<tr><td>only one cell</td></tr>
		<tr><td>Farbe</td><td>Rot</td></tr>
		<tr><td>Material</td><td></td></tr>
	</table>`

	list, err := Extract(html)
	require.NoError(t, err)
	require.Equal(t, 1, list.Len())
	assert.Equal(t, "Farbe", list.Pairs()[0].Name)
}

func TestPairListAdd(t *testing.T) {
	list := NewPairList()
	list.Add("a", "1")
	list.Add("", "x")
	list.Add("b", "")
	list.Add("a", "2")

	require.Equal(t, 1, list.Len())
	assert.True(t, list.Has("a"))
	assert.False(t, list.Has("b"))
}
