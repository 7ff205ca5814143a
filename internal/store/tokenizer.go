package store

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches runs of letters, digits, and underscores.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// DefaultStopWords are dropped from both indexed terms and queries.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"has", "in", "is", "it", "its", "of", "on", "or", "that", "the",
	"this", "to", "was", "were", "will", "with",
}

// TokenizeCode splits text with code-aware rules.
// It handles camelCase, PascalCase, snake_case, and filters short tokens.
// All tokens are lowercased.
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range SplitCodeToken(word) {
			lower := strings.ToLower(t)
			if len([]rune(lower)) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// IndexTerms returns the text stored in the keyword index for a chunk: each
// word lowercased, followed by its camelCase/snake_case parts when it has
// more than one, with stop words removed.
func IndexTerms(text string, stopWords map[string]struct{}) string {
	var terms []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		terms = appendTerms(terms, word, stopWords)
	}
	return strings.Join(terms, " ")
}

func appendTerms(terms []string, word string, stopWords map[string]struct{}) []string {
	keep := func(t string) {
		t = strings.ToLower(t)
		if len([]rune(t)) < 2 {
			return
		}
		if _, stop := stopWords[t]; stop {
			return
		}
		terms = append(terms, t)
	}

	keep(strings.Trim(word, "_"))
	parts := SplitCodeToken(word)
	if len(parts) > 1 {
		for _, p := range parts {
			keep(p)
		}
	}
	return terms
}

// QueryTerms returns the distinct terms of a query, in first-seen order.
func QueryTerms(query string, stopWords map[string]struct{}) []string {
	var raw []string
	for _, word := range tokenRegex.FindAllString(query, -1) {
		raw = appendTerms(raw, word, stopWords)
	}

	seen := make(map[string]struct{}, len(raw))
	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

// BuildMatchQuery turns terms into an FTS5 MATCH expression matching any of
// them. Each term is quoted so FTS5 operators in user input stay literal.
func BuildMatchQuery(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// SplitCodeToken splits camelCase and snake_case identifiers.
func SplitCodeToken(token string) []string {
	var result []string

	if strings.Contains(token, "_") {
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, SplitCamelCase(part)...)
			}
		}
		return result
	}

	return SplitCamelCase(token)
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
// Examples:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
//   - "parseHTTPRequest" -> ["parse", "HTTP", "Request"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			// Acronyms stay together until a lowercase run starts.
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
