package longterm

import (
	"math"
	"strings"
	"unicode"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// tokenize lowercases and splits on anything that isn't a letter or
// digit, dropping empty tokens.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return fields
}

// bm25 scores each document in docs against the query terms using the
// standard Okapi BM25 formula, returning one score per document.
func bm25(terms []string, docs [][]string) []float64 {
	n := len(docs)
	scores := make([]float64, n)
	if n == 0 {
		return scores
	}

	var totalLen int
	docFreq := make(map[string]int)
	termCounts := make([]map[string]int, n)
	for i, doc := range docs {
		totalLen += len(doc)
		counts := make(map[string]int, len(doc))
		for _, t := range doc {
			counts[t]++
		}
		termCounts[i] = counts
		seen := make(map[string]bool)
		for _, t := range terms {
			if counts[t] > 0 && !seen[t] {
				docFreq[t]++
				seen[t] = true
			}
		}
	}
	avgLen := float64(totalLen) / float64(n)

	for i, counts := range termCounts {
		docLen := float64(len(docs[i]))
		var score float64
		for _, t := range terms {
			tf := float64(counts[t])
			if tf == 0 {
				continue
			}
			df := docFreq[t]
			idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*docLen/avgLen))
			score += idf * norm
		}
		scores[i] = score
	}
	return scores
}
