// Package ranking scores feeds against the work profile to bound fetch volume.
package ranking

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"FeedDigest/internal/domain"
)

const minTokenLength = 2

func isSeparator(r rune) bool {
	switch r {
	case ',', '，', '.', ';', '|', '/', '\\':
		return true
	}
	return unicode.IsSpace(r)
}

// Tokenize lower-cases the profile and splits it into unique keywords of at least two characters.
func Tokenize(profile string) []string {
	fields := strings.FieldsFunc(strings.ToLower(profile), isSeparator)

	tokens := make([]string, 0, len(fields))
	seen := map[string]struct{}{}
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenLength {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// Score counts how many tokens occur in the feed title or URL.
func Score(tokens []string, feed domain.FeedDescriptor) int {
	haystack := strings.ToLower(feed.Title + " " + feed.FeedURL)
	score := 0
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			score++
		}
	}
	return score
}

// Rank scores every feed and returns the top limit, keeping input order among equal scores.
func Rank(profile string, feeds []domain.FeedDescriptor, limit int) []domain.RankedFeed {
	if limit <= 0 || len(feeds) == 0 {
		return nil
	}

	tokens := Tokenize(profile)
	ranked := make([]domain.RankedFeed, len(feeds))
	for i, feed := range feeds {
		ranked[i] = domain.RankedFeed{FeedDescriptor: feed, Score: Score(tokens, feed)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
