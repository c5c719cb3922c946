// Package chatbot answers common questions from a fixed FAQ using keyword
// scoring with a small amount of typo tolerance.
package chatbot

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	"github.com/go-andiamo/splitter"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

const (
	TopicGreeting = "greeting"
	TopicFallback = "fallback"

	// fuzzyMinLength is the shortest word allowed a one-edit typo.
	fuzzyMinLength = 5
	maxSuggestions = 3

	phraseWeight = 3
	exactWeight  = 2
	fuzzyWeight  = 1
	// fullConfidence is the score at which confidence reaches 1.
	fullConfidence = 6
)

const (
	greetingAnswer = "Hello! Ask me about eligibility, blood groups, matching, documents or what happens after a match."
	fallbackAnswer = "Sorry, I don't have an answer for that yet. Try one of the suggested questions or contact your care team."
)

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "namaste": true, "greetings": true,
	"morning": true, "evening": true, "thanks": true, "thank": true,
}

// Reply is the answer to a single question.
type Reply struct {
	Answer      string   `json:"answer"`
	Topic       string   `json:"topic"`
	Confidence  float64  `json:"confidence"`
	Suggestions []string `json:"suggestions"`
}

type Bot struct {
	entries []Entry
	split   splitter.Splitter
}

// New builds a bot over entries. An empty entry list is an error.
func New(entries []Entry) (*Bot, error) {
	if len(entries) == 0 {
		return nil, errors.New("chatbot: no FAQ entries")
	}
	sp, err := splitter.NewSplitter(' ', splitter.DoubleQuotes, splitter.LeftRightDoubleDoubleQuotes)
	if err != nil {
		return nil, err
	}
	return &Bot{entries: entries, split: sp}, nil
}

func (b *Bot) Entries() []Entry {
	return b.entries
}

// tokenize splits question on spaces, keeping quoted phrases whole, and
// returns lower-cased tokens with surrounding punctuation removed.
// Unbalanced quotes fall back to plain whitespace splitting.
func (b *Bot) tokenize(question string) []string {
	parts, err := b.split.Split(question)
	if err != nil {
		parts = strings.Fields(question)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimFunc(strings.ToLower(p), func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '“' || r == '”'
		})
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalize lower-cases s and collapses punctuation to single spaces so
// phrase keywords can be found by substring.
func normalize(s string) string {
	return " " + strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ") + " "
}

func wordMatches(word, keyword string) (int, bool) {
	if word == keyword {
		return exactWeight, true
	}
	if len(word) >= fuzzyMinLength && len(keyword) >= fuzzyMinLength &&
		fuzzy.LevenshteinDistance(word, keyword) <= 1 {
		return fuzzyWeight, true
	}
	return 0, false
}

func (b *Bot) score(e Entry, tokens []string, text string) int {
	total := 0
	for _, kw := range e.Keywords {
		kw = strings.ToLower(kw)
		if strings.Contains(kw, " ") {
			if strings.Contains(text, " "+kw+" ") {
				total += phraseWeight
			}
			continue
		}
		for _, tok := range tokens {
			words := strings.Fields(tok)
			matched := false
			for _, w := range words {
				if pts, ok := wordMatches(w, kw); ok {
					total += pts
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
	}
	return total
}

type ranked struct {
	idx   int
	score int
}

// Answer picks the best FAQ entry for question. Questions that match
// nothing get a greeting reply when they greet, otherwise the fallback
// reply with suggested questions.
func (b *Bot) Answer(question string) Reply {
	tokens := b.tokenize(question)
	text := normalize(question)

	var hits []ranked
	for i, e := range b.entries {
		if s := b.score(e, tokens, text); s > 0 {
			hits = append(hits, ranked{idx: i, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) == 0 {
		for _, t := range tokens {
			if greetings[t] {
				return Reply{Answer: greetingAnswer, Topic: TopicGreeting, Confidence: 1, Suggestions: b.suggest(nil)}
			}
		}
		return Reply{Answer: fallbackAnswer, Topic: TopicFallback, Suggestions: b.suggest(nil)}
	}

	best := b.entries[hits[0].idx]
	conf := float64(hits[0].score) / fullConfidence
	if conf > 1 {
		conf = 1
	}
	others := make([]int, 0, len(hits)-1)
	for _, h := range hits[1:] {
		others = append(others, h.idx)
	}
	return Reply{Answer: best.Answer, Topic: best.Topic, Confidence: conf, Suggestions: b.suggest(others)}
}

// suggest returns the questions of the given entries, or of the first
// entries when none are given, capped at maxSuggestions.
func (b *Bot) suggest(idx []int) []string {
	if idx == nil {
		for i := range b.entries {
			idx = append(idx, i)
		}
	}
	out := make([]string, 0, maxSuggestions)
	for _, i := range idx {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, b.entries[i].Question)
	}
	return out
}
