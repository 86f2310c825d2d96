// Package sandbox turns editor content into an isolated preview document.
package sandbox

import (
	"html"
	"regexp"
	"strings"

	"github.com/DoyleJ11/codearena/pkg/types"
)

// SandboxPolicy is the iframe sandbox token list: scripts run, but the frame
// gets an opaque origin (no storage, cookies or parent DOM) and cannot
// navigate the top window, submit forms or open popups.
const SandboxPolicy = "allow-scripts"

const contentPolicy = "default-src 'none'; style-src 'unsafe-inline'; script-src 'unsafe-inline'; img-src * data:; font-src * data:"

var (
	closeStyle  = regexp.MustCompile(`(?i)</(style)`)
	closeScript = regexp.MustCompile(`(?i)</(script)`)
)

// Render wraps html, css and js into one self-contained document.
func Render(c types.Code) string {
	var b strings.Builder
	b.Grow(len(c.HTML) + len(c.CSS) + len(c.JS) + 512)

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString(`<meta charset="utf-8">` + "\n")
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">` + "\n")
	b.WriteString(`<meta http-equiv="Content-Security-Policy" content="` + contentPolicy + `">` + "\n")
	b.WriteString("<style>")
	b.WriteString(escapeStyle(c.CSS))
	b.WriteString("</style>\n</head>\n<body>\n")
	b.WriteString(c.HTML)
	b.WriteString("\n<script>")
	b.WriteString(escapeScript(c.JS))
	b.WriteString("</script>\n</body>\n</html>\n")
	return b.String()
}

// Frame embeds a rendered document in a sandboxed iframe element.
func Frame(doc, title string) string {
	return `<iframe title="` + html.EscapeString(title) +
		`" sandbox="` + SandboxPolicy +
		`" referrerpolicy="no-referrer" srcdoc="` + html.EscapeString(doc) + `"></iframe>`
}

// A literal closing tag inside the inline block would end it early.
func escapeStyle(css string) string {
	return closeStyle.ReplaceAllString(css, `<\/$1`)
}

func escapeScript(js string) string {
	return closeScript.ReplaceAllString(js, `<\/$1`)
}
