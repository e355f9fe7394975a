package heuristic

import (
	"regexp"
	"sort"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

var (
	positiveWords = []string{
		"good", "great", "excellent", "amazing", "wonderful", "happy", "love",
		"fantastic", "awesome", "brilliant", "perfect", "outstanding", "superb",
		"delighted", "thrilled", "excited", "pleased", "satisfied", "enjoy",
	}
	negativeWords = []string{
		"bad", "terrible", "awful", "hate", "sad", "angry", "frustrated",
		"horrible", "disgusting", "disappointed", "upset", "annoyed", "worried",
		"concerned", "stressed", "anxious", "depressed", "miserable", "furious",
	}
	intensifiers = []string{"very", "extremely", "really", "absolutely", "completely"}

	wordRe = regexp.MustCompile(`\b[a-zA-Z]{4,}\b`)

	stopWords = map[string]struct{}{
		"that": {}, "this": {}, "with": {}, "have": {}, "will": {}, "from": {}, "they": {},
		"been": {}, "were": {}, "said": {}, "each": {}, "which": {}, "their": {}, "time": {},
		"would": {}, "there": {}, "could": {}, "other": {}, "after": {}, "first": {}, "well": {},
		"very": {}, "what": {}, "know": {}, "just": {}, "back": {}, "good": {}, "much": {},
		"before": {}, "right": {}, "through": {}, "when": {}, "where": {}, "should": {},
		"those": {}, "these": {}, "being": {}, "both": {}, "more": {}, "most": {}, "some": {},
		"such": {}, "only": {}, "also": {}, "even": {}, "come": {}, "make": {}, "take": {},
	}
)

// Sentiment scores text against a small lexicon. Intensifiers scale both
// sides; one side has to lead by 20% to win, and a close contest with
// signal on both sides is mixed.
func Sentiment(text string) memory.Sentiment {
	lower := strings.ToLower(text)
	var pos, neg float64
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos += 2
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg += 2
		}
	}
	for _, w := range intensifiers {
		if strings.Contains(lower, w) {
			pos *= 1.2
			neg *= 1.2
		}
	}

	switch {
	case pos > neg*1.2:
		return memory.SentimentPositive
	case neg > pos*1.2:
		return memory.SentimentNegative
	case pos > 0 && neg > 0:
		return memory.SentimentMixed
	}
	return memory.SentimentNeutral
}

// Keywords returns up to limit repeated non-stop words, most frequent first.
func Keywords(text string, limit int) []string {
	counts := make(map[string]int)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w, n := range counts {
		if n > 1 {
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if limit > 0 && len(words) > limit {
		words = words[:limit]
	}
	return words
}
