package crawler

import (
	"regexp"
	"strings"
)

// The reader proxy wraps page text in markdown with navigation chrome,
// image links, and footer boilerplate. cleanPasses removes that in a fixed
// order; the chain is idempotent, so re-cleaning already-clean text is a
// no-op.
type cleanPass struct {
	re   *regexp.Regexp
	repl string
}

var cleanPasses = []cleanPass{
	// Reader preamble label.
	{regexp.MustCompile(`(?m)^Markdown Content:\s*$`), ""},
	// Navigation menu lines.
	{regexp.MustCompile(`(?m)^.*(?:Alternar menú|Main Menu|MENÚ DE NAVEGACIÓN|Navigation Menu).*$`), ""},
	// Skip-to-content accessibility links.
	{regexp.MustCompile(`(?is)\[[^\]]*content[^\]]*\]\([^)]*\)`), ""},
	{regexp.MustCompile(`(?is)\[[^\]]*contenido[^\]]*\]\([^)]*\)`), ""},
	// Squash horizontal rules to a fixed width.
	{regexp.MustCompile(`-{3,}`), "-----"},
	{regexp.MustCompile(`={3,}`), "====="},
	// Image links, linked or bare.
	{regexp.MustCompile(`(?s)\[!\[.*?\]\(.*?\)\]\(.*?\)|!\[.*?\]\(.*?\)`), ""},
	// Footer boilerplate lines.
	{regexp.MustCompile(`(?m)^.*(?:Copyright ©|Powered by|Sitio creado por|Aviso legal|Legal Notice|Scroll al inicio).*$`), ""},
}

var cleanLinePasses = []cleanPass{
	// Bullets that are nothing but a link.
	{regexp.MustCompile(`(?m)^\s*\*\s*\[[^\]]+\]\([^)]+\)\s*$\n?`), ""},
	// Links with empty text.
	{regexp.MustCompile(`\[\]\([^)]*\)`), ""},
	// Lines holding a lone bang or bullet.
	{regexp.MustCompile(`(?m)^!\s*$\n?`), ""},
	{regexp.MustCompile(`(?m)^\*\s*$\n?`), ""},
	// Pagination markers such as << 1 2 3 >> or < 1 2 >.
	{regexp.MustCompile(`(?m)^<<[\s\d]*>>\s*$\n?`), ""},
	{regexp.MustCompile(`(?m)^<[\s\d]*>\s*$\n?`), ""},
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// CleanMarkdown applies the full filter chain to reader-proxy markdown.
func CleanMarkdown(text string) string {
	for _, p := range cleanPasses {
		text = p.re.ReplaceAllString(text, p.repl)
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	for _, p := range cleanLinePasses {
		text = p.re.ReplaceAllString(text, p.repl)
	}
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
