// Package heuristic is the pattern-based fallback for the model: regex entity
// extraction, a sentiment lexicon and keyword counting. It needs no network
// and is what the engine falls back to when the model is down.
package heuristic

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// MaxEntities caps how many entities one text yields.
const MaxEntities = 25

type pattern struct {
	re  *regexp.Regexp
	typ memory.EntityType
}

// Order matters: the first pattern to claim a span wins.
var patterns = []pattern{
	{regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.]+`), memory.EntityContact},
	{regexp.MustCompile(`https?://[^\s]+`), memory.EntityURL},
	{regexp.MustCompile(`\$\d+(?:,\d{3})*(?:\.\d{2})?\b`), memory.EntityMoney},
	{regexp.MustCompile(`\b\d{1,2}:\d{2}(?:\s*[APap][Mm])?\b`), memory.EntityTime},
	{regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`), memory.EntityDate},
	{regexp.MustCompile(`\b(?:Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\b`), memory.EntityDate},
	{regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\b`), memory.EntityDate},
	{regexp.MustCompile(`\b[A-Z][A-Z0-9]+\b`), memory.EntityOther},
	{regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`), memory.EntityOther},
}

var falsePositives = map[string]struct{}{
	"The": {}, "This": {}, "That": {}, "They": {}, "There": {}, "Then": {},
	"When": {}, "Where": {}, "What": {}, "Who": {}, "Why": {}, "How": {},
	"I": {}, "It": {}, "We": {}, "You": {}, "He": {}, "She": {}, "Is": {}, "Did": {},
}

// Extract finds entity mentions in text. It never fails; the error is there
// to satisfy embeddings.Extractor.
func Extract(_ context.Context, text string) ([]memory.EntityRef, error) {
	type span struct{ start, end int }
	var claimed []span
	overlaps := func(s, e int) bool {
		for _, c := range claimed {
			if s < c.end && e > c.start {
				return true
			}
		}
		return false
	}

	type hit struct {
		pos int
		ref memory.EntityRef
	}
	var hits []hit
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			s, e := loc[0], loc[1]
			if overlaps(s, e) {
				continue
			}
			name := trimFalsePositive(text[s:e])
			if name == "" {
				continue
			}
			claimed = append(claimed, span{s, e})
			hits = append(hits, hit{pos: s, ref: memory.EntityRef{Name: name, Type: p.typ}})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	refs := make([]memory.EntityRef, 0, len(hits))
	for _, h := range hits {
		refs = append(refs, h.ref)
	}
	refs = memory.UniqueRefs(refs)
	if len(refs) > MaxEntities {
		refs = refs[:MaxEntities]
	}
	return refs, nil
}

// trimFalsePositive drops leading filler words from a proper-noun run, so
// "What Sarah" becomes "Sarah" and a bare "The" disappears.
func trimFalsePositive(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 {
		if _, ok := falsePositives[words[0]]; !ok {
			break
		}
		words = words[1:]
	}
	return strings.Join(words, " ")
}
