package textindex

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// skipped elements whose text is never visible.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// ExtractText returns the visible text of an HTML document, whitespace collapsed.
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var b strings.Builder
	depth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.Join(strings.Fields(b.String()), " "), nil
			}
			return "", z.Err() //nolint:wrapcheck // tokenizer error carries the read cause
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipped[string(name)] {
				depth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipped[string(name)] && depth > 0 {
				depth--
			}
		case html.TextToken:
			if depth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}
