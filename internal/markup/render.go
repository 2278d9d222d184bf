package markup

import "html"

// Highlight renders m as HTML with every tag wrapped in a span of class
// "tag". All other text is escaped.
func Highlight(m string) string {
	return tagPattern.ReplaceAllStringFunc(html.EscapeString(m), func(tok string) string {
		return `<span class="tag">` + tok + `</span>`
	})
}
