// Package segment splits book text into LLM-sized units: token-budgeted
// chunks for the claims pipeline and structural chapters for the chapters
// pipeline.
package segment

import "strings"

// EstimateTokens approximates the token count of text as ceil(chars/4).
// The whole pipeline budgets against this estimator, so it must stay
// consistent across chunking, chapter splitting, and compression limits.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// WordCount counts whitespace-separated words. Output word counts and
// compression ratios use this definition on both sides.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
