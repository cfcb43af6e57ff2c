// Package docparse normalizes raw documents of varying file_type into the
// Markdown the chunk splitter expects (used by internal/ingest before
// cleaning, per SPEC_FULL.md §3).
package docparse

import "regexp"

var (
	htmlHeadingRe = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h\d>`)
	htmlParaRe    = regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`)
	htmlBreakRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
)

// Parse converts rawContent of the given file_type to Markdown.
// "markdown"/"md" and "txt" pass through unchanged; "html" gets a basic
// heading/paragraph/break conversion. Anything else is treated as
// Markdown, matching the original parser's "default to Markdown" rule.
func Parse(rawContent, fileType string) string {
	switch fileType {
	case "html":
		return htmlToMarkdown(rawContent)
	default:
		return rawContent
	}
}

func htmlToMarkdown(html string) string {
	text := htmlHeadingRe.ReplaceAllStringFunc(html, func(m string) string {
		groups := htmlHeadingRe.FindStringSubmatch(m)
		level := len(groups[1])
		hashes := ""
		for i := 0; i < level; i++ {
			hashes += "#"
		}
		return hashes + " " + groups[2]
	})
	text = htmlParaRe.ReplaceAllString(text, "$1\n")
	text = htmlBreakRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	return text
}
