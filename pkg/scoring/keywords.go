package scoring

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords are tokens too generic to seed a candidate search with.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "how": {}, "i": {}, "in": {}, "is": {},
	"it": {}, "my": {}, "new": {}, "of": {}, "on": {}, "or": {}, "the": {},
	"this": {}, "to": {}, "vs": {}, "what": {}, "why": {}, "with": {},
	"you": {}, "your": {}, "video": {}, "official": {}, "ep": {},
	"part": {}, "full": {}, "hd": {}, "4k": {}, "shorts": {},
}

const topKeywordCount = 5

// TopKeywords tokenizes recent video titles and tags, strips stopwords and
// single-character tokens, and returns the 5 most frequent tokens in
// descending frequency. When nothing survives filtering it falls back to
// the channel title so radar seeding always has a query to work with.
func TopKeywords(titles []string, tags []string, channelTitle string) []string {
	counts := make(map[string]int)
	order := make(map[string]int) // first-seen rank for deterministic ties
	seen := 0

	count := func(token string) {
		token = normalizeToken(token)
		if token == "" {
			return
		}
		if _, skip := stopwords[token]; skip {
			return
		}
		if _, ok := counts[token]; !ok {
			order[token] = seen
			seen++
		}
		counts[token]++
	}

	for _, title := range titles {
		for _, token := range splitTokens(title) {
			count(token)
		}
	}
	for _, tag := range tags {
		for _, token := range splitTokens(tag) {
			count(token)
		}
	}

	if len(counts) == 0 {
		if channelTitle == "" {
			return nil
		}
		return []string{channelTitle}
	}

	tokens := make([]string, 0, len(counts))
	for token := range counts {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return order[tokens[i]] < order[tokens[j]]
	})

	if len(tokens) > topKeywordCount {
		tokens = tokens[:topKeywordCount]
	}
	return tokens
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalizeToken(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	if len([]rune(token)) < 2 {
		return ""
	}
	return token
}
