// Package readme normalizes repository README bodies: HTML READMEs become
// markdown, and inline HTML is stripped before pattern mining.
package readme

import (
	"path"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var (
	scriptRe         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLinesRe = regexp.MustCompile(`\n{4,}`)
)

// Converter turns HTML README files into markdown.
type Converter struct {
	converter *md.Converter
}

// NewConverter creates a converter with GitHub-flavored output.
func NewConverter() *Converter {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Converter{converter: converter}
}

// IsHTMLName reports whether a README file name denotes an HTML document.
func IsHTMLName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// Normalize returns the README body as markdown text. Bodies of HTML files
// are converted; everything else is returned unchanged.
func (c *Converter) Normalize(name string, body []byte) (string, error) {
	if !IsHTMLName(name) {
		return string(body), nil
	}
	return c.Convert(body)
}

// Convert transforms an HTML document or fragment to markdown.
func (c *Converter) Convert(content []byte) (string, error) {
	cleaned := extractBody(content)
	markdown, err := c.converter.ConvertString(cleaned)
	if err != nil {
		return "", err
	}
	return cleanMarkdown(markdown), nil
}

// extractBody keeps the body of a full HTML document without scripts and
// styles. Fragments parse into a synthetic body and pass through intact.
func extractBody(content []byte) string {
	doc, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		content := scriptRe.ReplaceAllString(string(content), "")
		return styleRe.ReplaceAllString(content, "")
	}

	removeElements(doc, map[string]bool{"script": true, "style": true, "noscript": true})

	if body := findElement(doc, "body"); body != nil {
		var sb strings.Builder
		for c := body.FirstChild; c != nil; c = c.NextSibling {
			html.Render(&sb, c)
		}
		return sb.String()
	}
	return string(content)
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func removeElements(n *html.Node, tags map[string]bool) {
	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.ElementNode && tags[node.Data] {
			toRemove = append(toRemove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range toRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

// cleanMarkdown collapses runs of blank lines and trims trailing spaces.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
