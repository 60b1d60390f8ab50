package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// overlapThreshold is the minimum word-overlap ratio (intersection over
	// union of the normalised word sets) for two utterances to count as the
	// same question.
	overlapThreshold = 0.6

	// similarityThreshold is the Jaro-Winkler score that confirms a repeat
	// when the word-overlap ratio alone falls short, catching rephrasings
	// with small wording drift. Set high: interview questions share long
	// common prefixes ("what is your …"), which Jaro-Winkler rewards.
	similarityThreshold = 0.95
)

// fillerWords are leading tokens that carry no question content and are
// stripped one at a time from the front of a normalised utterance.
var fillerWords = map[string]bool{
	"so": true, "okay": true, "ok": true, "well": true, "alright": true,
	"um": true, "uh": true, "now": true, "right": true, "anyway": true,
}

// fillerPhrases are leading phrases speakers use when restating a question.
// Matched against the normalised (lowercase, punctuation-free) utterance.
var fillerPhrases = []string{
	"heres the question one more time",
	"let me repeat the question",
	"let me ask you again",
	"let me ask again",
	"ill repeat the question",
	"ill say it again",
	"one more time",
	"once again",
	"as i asked before",
	"the question is",
	"the question was",
	"my question is",
	"i said",
	"i asked",
	"again",
}

// Normalize lowercases text, strips punctuation, and removes common filler
// prefixes, leaving only the question's content words.
func Normalize(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			sb.WriteRune(r)
		case r == '\t', r == '\n':
			sb.WriteByte(' ')
		}
	}
	norm := strings.Join(strings.Fields(sb.String()), " ")

	for {
		trimmed := norm
		for _, phrase := range fillerPhrases {
			if strings.HasPrefix(trimmed, phrase+" ") {
				trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, phrase))
				break
			}
		}
		if fields := strings.Fields(trimmed); len(fields) > 1 && fillerWords[fields[0]] {
			trimmed = strings.Join(fields[1:], " ")
		}
		if trimmed == norm {
			return norm
		}
		norm = trimmed
	}
}

// SameQuestion reports whether curr is a near-repetition of prev. Both are
// normalised, then compared by word-overlap ratio; borderline cases are
// confirmed with Jaro-Winkler similarity on the full normalised strings.
func SameQuestion(prev, curr string) bool {
	a, b := Normalize(prev), Normalize(curr)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	if overlapRatio(a, b) >= overlapThreshold {
		return true
	}
	return matchr.JaroWinkler(a, b, true) >= similarityThreshold
}

// overlapRatio returns |words(a) ∩ words(b)| / |words(a) ∪ words(b)|.
func overlapRatio(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for w := range setA {
		if setB[w] {
			common++
		}
	}
	union := len(setA) + len(setB) - common
	return float64(common) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}
