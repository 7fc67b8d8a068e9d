package readme

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// skipped elements whose text content is dropped entirely.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
}

// blockTags end a line so words from adjacent blocks do not merge.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "ul": true, "ol": true, "pre": true, "blockquote": true,
}

// StripHTML removes inline HTML tags from markdown text, keeping their text
// content and decoding entities. Script and style bodies are dropped.
// Plain markdown passes through with its text intact.
func StripHTML(text string) string {
	if !strings.Contains(text, "<") && !strings.Contains(text, "&") {
		return text
	}

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(text))
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return sb.String()
			}
			return text
		case html.TextToken:
			if skipDepth == 0 {
				sb.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipped[tag] && tt == html.StartTagToken {
				skipDepth++
			}
			if blockTags[tag] && skipDepth == 0 {
				sb.WriteByte('\n')
			}
			if tag == "img" && skipDepth == 0 {
				if alt := attr(z, "alt"); alt != "" {
					sb.WriteString(alt)
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipped[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockTags[tag] && skipDepth == 0 {
				sb.WriteByte('\n')
			}
		}
	}
}

// attr reads one attribute from the current tag token.
func attr(z *html.Tokenizer, key string) string {
	for {
		k, v, more := z.TagAttr()
		if string(k) == key {
			return string(v)
		}
		if !more {
			return ""
		}
	}
}
