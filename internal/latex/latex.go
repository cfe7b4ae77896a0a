// Package latex converts the LaTeX markup embedded in arXiv titles and
// abstracts into displayable HTML.
//
// Process is a pure function built from an ordered substitution pipeline.
// The order is a correctness contract, not an implementation detail:
// formatting commands run first, URL commands must run before escape
// normalization (or escaped characters inside URLs break), and spacing
// commands run last.
package latex

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type substitution struct {
	re   *regexp.Regexp
	repl string
}

// Ordered pipeline. Applied top to bottom; reordering changes output.
var substitutions = []substitution{
	// Text formatting commands.
	{regexp.MustCompile(`\\textbf\{([^}]+)\}`), "<strong>$1</strong>"},
	{regexp.MustCompile(`\\textit\{([^}]+)\}`), "<em>$1</em>"},
	{regexp.MustCompile(`\\emph\{([^}]+)\}`), "<em>$1</em>"},
	{regexp.MustCompile(`\\texttt\{([^}]+)\}`), "<code>$1</code>"},
	{regexp.MustCompile(`\\underline\{([^}]+)\}`), "<u>$1</u>"},

	// URLs and hrefs. Must precede the escape block below.
	{regexp.MustCompile(`\\url\{([^}]+)\}`), `<a href="$1" target="_blank">$1</a>`},
	{regexp.MustCompile(`\\href\{([^}]+)\}\{([^}]+)\}`), `<a href="$1" target="_blank">$2</a>`},
}

var postURLSubstitutions = []substitution{
	// Special characters and escapes.
	{regexp.MustCompile(`\\%`), "%"},
	{regexp.MustCompile(`\\&`), "&"},
	{regexp.MustCompile(`\\\$`), "$$"},
	{regexp.MustCompile(`\\#`), "#"},
	{regexp.MustCompile(`\\_`), "_"},
	{regexp.MustCompile(`\\\{`), "{"},
	{regexp.MustCompile(`\\\}`), "}"},
	{regexp.MustCompile(`\\textbackslash(\{\})?`), `\`},
	{regexp.MustCompile(`\\~`), "~"},
	{regexp.MustCompile(`\\\^`), "^"},

	// LaTeX quotes.
	{regexp.MustCompile("``"), `"`},
	{regexp.MustCompile(`''`), `"`},
	{regexp.MustCompile("`"), "‘"},
	{regexp.MustCompile(`'`), "’"},

	// Spacing commands.
	{regexp.MustCompile(`\\,`), " "},
	{regexp.MustCompile(`~`), "&nbsp;"},
	{regexp.MustCompile(`\\\\`), "<br>"},
}

// Process translates LaTeX commands in text to HTML. Deterministic and
// stateless; running it on already-processed output is a no-op.
func Process(text string) string {
	for _, s := range substitutions {
		text = s.re.ReplaceAllString(text, s.repl)
	}
	text = autolinkBareURLs(text)
	for _, s := range postURLSubstitutions {
		text = s.re.ReplaceAllString(text, s.repl)
	}
	return text
}

var bareURLRe = regexp.MustCompile(`https?://[^\s<>"]+`)

// autolinkBareURLs wraps plain http(s) URLs in anchors. A URL already inside
// an emitted anchor (preceded by `href="` or `">`) is left alone, as is one
// not followed by whitespace or end of text, which keeps the pass idempotent.
// A trailing period stays outside the link.
func autolinkBareURLs(text string) string {
	matches := bareURLRe.FindAllStringIndex(text, -1)
	if matches == nil {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]

		pre := text[:start]
		if strings.HasSuffix(pre, `href="`) || strings.HasSuffix(pre, `">`) {
			continue
		}
		if end < len(text) {
			r, _ := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(r) {
				continue
			}
		}

		url := text[start:end]
		trailer := ""
		if strings.HasSuffix(url, ".") {
			url = url[:len(url)-1]
			trailer = "."
		}

		b.WriteString(text[last:start])
		b.WriteString(`<a href="`)
		b.WriteString(url)
		b.WriteString(`" target="_blank">`)
		b.WriteString(url)
		b.WriteString(`</a>`)
		b.WriteString(trailer)
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}
