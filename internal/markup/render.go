package markup

import (
	"html"
	"strings"
)

// Render serializes pairs to a two-column HTML table in insertion order.
// Rendering an extracted list reproduces the original mapping on re-extract.
func Render(pairs []Pair) string {
	var sb strings.Builder
	sb.WriteString("<table>")
	for _, p := range pairs {
		sb.WriteString("<tr><td>")
		sb.WriteString(html.EscapeString(p.Name))
		sb.WriteString("</td><td>")
		sb.WriteString(html.EscapeString(p.Value))
		sb.WriteString("</td></tr>")
	}
	sb.WriteString("</table>")
	return sb.String()
}
