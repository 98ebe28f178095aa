package speech

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var shortcodePattern = regexp.MustCompile(`:[a-zA-Z0-9_]+:`)

// Flatten strips HTML markup and :shortcode: emoji from a status body,
// leaving plain text suitable for a synthesis backend. Block boundaries
// become spaces so sentences do not run together.
func Flatten(body string) string {
	var b strings.Builder

	tokenizer := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.TextToken:
			b.Write(tokenizer.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "p", "br", "div", "blockquote", "li":
				b.WriteByte(' ')
			}
		}
	}

	text := shortcodePattern.ReplaceAllString(b.String(), " ")
	return strings.Join(strings.Fields(text), " ")
}
