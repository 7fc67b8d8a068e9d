package rules

import (
	"regexp"
	"strings"

	vocab "github.com/c360studio/repograph/vocabulary/repograph"
)

// Pattern is one free-text mining rule. Every match of Regexp contributes
// its first capture group as the object of a Predicate triple.
type Pattern struct {
	Predicate  string
	Confidence float64
	Regexp     *regexp.Regexp

	// stop lists captures that are grammar, not names.
	stop map[string]bool

	// canonical rewrites a capture to its preferred spelling.
	canonical func(string) string
}

// languageNames is ordered so longer names win over their prefixes.
const languageNames = `Objective-C|JavaScript|TypeScript|CoffeeScript|PowerShell|Golang|Kotlin|Python|Haskell|Clojure|Elixir|Erlang|Fortran|OCaml|Julia|Scala|Swift|Shell|Ruby|Rust|Java|Bash|Dart|Perl|Zig|Nim|Lua|PHP|C\+\+|C#|F#|Go|C|R`

var (
	writtenInRe = regexp.MustCompile(
		`(?i)\b(?:written|implemented|coded|programmed)\s+(?:(?:entirely|purely|mainly|mostly|fully|completely)\s+)?in\s+(?:pure\s+|modern\s+)?(` + languageNames + `)(?:[^\w+#]|$)`)

	usesTechnologyRe = regexp.MustCompile(
		`(?i)\b(?:built\s+(?:with|on|using|upon)|powered\s+by|based\s+on|made\s+with|leverag(?:es|ing))\s+([A-Za-z0-9][\w.+#-]*)`)

	developedByRe = regexp.MustCompile(
		`(?i:\b(?:developed|created|maintained|authored|written|built|made)\s+(?:and\s+maintained\s+)?by)\s+(@?[A-Za-z0-9][\w.-]*(?:[ \t]+[A-Z][\w-]*)*)`)

	releaseRe = regexp.MustCompile(
		`(?i)\b(?:version|release|v)\s*(\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z][0-9A-Za-z.]*)?)`)
)

var grammarWords = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true, "these": true,
	"our": true, "your": true, "its": true, "their": true, "my": true,
	"top": true, "any": true, "some": true, "all": true, "many": true, "more": true,
	"it": true, "them": true, "us": true, "you": true, "default": true, "same": true,
	"community": true, "contributors": true, "people": true,
}

// DefaultPatterns returns the four pattern groups with their fixed confidences.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Predicate: vocab.WrittenIn, Confidence: 0.8, Regexp: writtenInRe, canonical: canonicalLanguage},
		{Predicate: vocab.UsesTechnology, Confidence: 0.7, Regexp: usesTechnologyRe, stop: grammarWords},
		{Predicate: vocab.DevelopedBy, Confidence: 0.7, Regexp: developedByRe, stop: grammarWords},
		{Predicate: vocab.HasRelease, Confidence: 0.6, Regexp: releaseRe},
	}
}

// Match returns the distinct captures of p in text. Comparison ignores case;
// the first spelling seen is kept, in order of first occurrence.
func (p Pattern) Match(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range p.Regexp.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		capture := cleanCapture(m[1])
		if p.canonical != nil {
			capture = p.canonical(capture)
		}
		if capture == "" {
			continue
		}
		key := strings.ToLower(capture)
		if p.stop[key] || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, capture)
	}
	return out
}

// cleanCapture drops handle markers, leading articles and trailing
// punctuation.
func cleanCapture(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "@")
	for _, article := range []string{"the ", "a ", "an "} {
		if len(s) > len(article) && strings.EqualFold(s[:len(article)], article) {
			s = strings.TrimSpace(s[len(article):])
			break
		}
	}
	return strings.TrimRight(s, ".,;:!?)-")
}

// languageSpelling maps lowercased language names to their usual spelling.
var languageSpelling = func() map[string]string {
	m := make(map[string]string)
	for _, name := range strings.Split(strings.ReplaceAll(languageNames, `\+`, "+"), "|") {
		m[strings.ToLower(name)] = name
	}
	m["golang"] = "Go"
	return m
}()

func canonicalLanguage(s string) string {
	if name, ok := languageSpelling[strings.ToLower(s)]; ok {
		return name
	}
	return s
}
