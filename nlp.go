package main

import (
	"sort"
	"strings"
	"unicode"
)

const (
	maxKeywords         = 10
	maxSummarySentences = 3
)

// Minimal English stopword list for keyword scoring.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at be because
		been before being below between both but by could did do does doing down during each few for from further
		had has have having he her here hers herself him himself his how i if in into is it its itself just me more
		most my myself no nor not now of off on once only or other our ours ourselves out over own said say says she
		should so some such than that the their theirs them themselves then there these they this those through to
		too under until up very was we were what when where which while who whom why will with would you your yours
		yourself yourselves`) {
		stopwords[w] = struct{}{}
	}
}

// enrichArticle derives keywords and a short extractive summary from the
// article body. It is purely heuristic and has no failure mode: empty or
// unusable text yields empty results.
func enrichArticle(text string) ([]string, string) {
	freqs := wordFrequencies(text)
	if len(freqs) == 0 {
		return nil, ""
	}
	return topKeywords(freqs, maxKeywords), summarize(text, freqs, maxSummarySentences)
}

// wordFrequencies counts non-stopword tokens, lowercased and stripped of
// surrounding punctuation.
func wordFrequencies(text string) map[string]int {
	freqs := make(map[string]int)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		freqs[word]++
	}
	return freqs
}

// topKeywords returns the n most frequent words, ties broken
// alphabetically for stable output.
func topKeywords(freqs map[string]int, n int) []string {
	words := make([]string, 0, len(freqs))
	for w := range freqs {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freqs[words[i]] != freqs[words[j]] {
			return freqs[words[i]] > freqs[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// summarize picks the n highest-scoring sentences (by keyword frequency,
// normalized by length) and re-joins them in document order.
func summarize(text string, freqs map[string]int, n int) string {
	sentences := splitSentences(text)
	if len(sentences) <= n {
		return strings.Join(sentences, " ")
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, 0, len(sentences))
	for i, sentence := range sentences {
		words := strings.Fields(strings.ToLower(sentence))
		if len(words) == 0 {
			continue
		}
		total := 0
		for _, token := range words {
			word := strings.TrimFunc(token, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsNumber(r)
			})
			total += freqs[word]
		}
		ranked = append(ranked, scored{index: i, score: float64(total) / float64(len(words))})
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].index < ranked[j].index })

	picked := make([]string, 0, len(ranked))
	for _, s := range ranked {
		picked = append(picked, sentences[s.index])
	}
	return strings.Join(picked, " ")
}
