package index

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"do": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {}, "it": {}, "me": {},
	"my": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "was": {}, "what": {},
	"with": {}, "you": {}, "your": {},
}

// Terms splits text into distinct lower-case alphanumeric terms, dropping
// one-letter words and stop words. Order of first appearance is kept.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
