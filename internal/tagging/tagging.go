// Package tagging suggests tags for a snippet from its language and source.
//
// Suggestions come from a fixed keyword table. A rule fires when any of its
// keywords appears in the code; rules may be limited to certain languages.
// The result always starts with the normalized language and never holds
// duplicates.
package tagging

import (
	"regexp"
	"strings"
)

// MaxTags bounds the number of suggestions.
const MaxTags = 10

type rule struct {
	keywords  []string
	tags      []string
	languages []string // empty means any language
}

var rules = []rule{
	{keywords: []string{"async", "await"}, tags: []string{"async", "promises"}, languages: []string{"javascript", "typescript"}},
	{keywords: []string{"async", "await"}, tags: []string{"async", "asyncio"}, languages: []string{"python"}},
	{keywords: []string{"promise", "then("}, tags: []string{"promises"}, languages: []string{"javascript", "typescript"}},
	{keywords: []string{"fetch(", "axios", "xmlhttprequest"}, tags: []string{"http", "api"}},
	{keywords: []string{"requests.", "http.get", "http.client", "net/http"}, tags: []string{"http", "api"}},
	{keywords: []string{"usestate", "useeffect", "react"}, tags: []string{"react", "hooks"}},
	{keywords: []string{"class "}, tags: []string{"oop"}},
	{keywords: []string{"select ", "insert into", "create table"}, tags: []string{"sql", "database"}},
	{keywords: []string{"regexp", "re.compile", "new regexp"}, tags: []string{"regex"}},
	{keywords: []string{"test(", "describe(", "def test_", "func test"}, tags: []string{"testing"}},
	{keywords: []string{"goroutine", "go func", "chan "}, tags: []string{"concurrency"}},
	{keywords: []string{"map(", "filter(", "reduce("}, tags: []string{"functional"}},
	{keywords: []string{"sort", "binary search", "recursion"}, tags: []string{"algorithms"}},
	{keywords: []string{"json"}, tags: []string{"json"}},
}

var nonTagChars = regexp.MustCompile(`[^a-z0-9+#-]+`)

var languageAliases = map[string]string{
	"js":     "javascript",
	"node":   "javascript",
	"ts":     "typescript",
	"py":     "python",
	"golang": "go",
}

// NormalizeLanguage lowercases a language name and resolves common aliases.
func NormalizeLanguage(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[l]; ok {
		return alias
	}
	return l
}

// Generate returns suggested tags for code written in language.
func Generate(code, language string) []string {
	lang := NormalizeLanguage(language)
	lower := strings.ToLower(code)

	seen := make(map[string]struct{})
	tags := make([]string, 0, 4)
	add := func(tag string) {
		tag = Normalize(tag)
		if tag == "" || len(tags) >= MaxTags {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	add(lang)
	for _, r := range rules {
		if !r.appliesTo(lang) || !containsAny(lower, r.keywords) {
			continue
		}
		for _, t := range r.tags {
			add(t)
		}
	}
	return tags
}

// Normalize turns free-form user input into a tag: lowercase, spaces become
// dashes, anything else outside [a-z0-9+#-] is removed.
func Normalize(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.ReplaceAll(t, " ", "-")
	t = nonTagChars.ReplaceAllString(t, "")
	return strings.Trim(t, "-")
}

// Merge appends extra to base, normalizing and dropping duplicates.
func Merge(base []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, t := range list {
			t = Normalize(t)
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func (r rule) appliesTo(lang string) bool {
	if len(r.languages) == 0 {
		return true
	}
	for _, l := range r.languages {
		if l == lang {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
