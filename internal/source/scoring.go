package source

import (
	"fmt"
	"strings"
)

// Field selects which part of a candidate a rule inspects.
type Field string

const (
	FieldSubject Field = "subject"
	FieldSender  Field = "sender"
	FieldBody    Field = "body"
)

// Rule adds Weight once when any keyword occurs (case-insensitive substring) in Field.
type Rule struct {
	Field    Field    `json:"field"`
	Keywords []string `json:"keywords"`
	Weight   int      `json:"weight"`
}

// Weights configure relevance scoring for adapters that return several candidates.
type Weights struct {
	Rules []Rule `json:"rules"`

	// LongBodyWeight is added when the body exceeds LongBodyLen code points.
	LongBodyLen    int `json:"long_body_len"`
	LongBodyWeight int `json:"long_body_weight"`
}

// DefaultWeights mirrors the tuning the bot shipped with. None of it is load-bearing.
func DefaultWeights() Weights {
	return Weights{
		Rules: []Rule{
			{Field: FieldSubject, Keywords: []string{"newsletter", "digest", "update", "weekly", "daily"}, Weight: 10},
			{Field: FieldSubject, Keywords: []string{"ai", "artificial intelligence", "machine learning", "tech"}, Weight: 8},
			{Field: FieldSender, Keywords: []string{"openai.com", "anthropic.com", "deepmind.com"}, Weight: 15},
			{Field: FieldSender, Keywords: []string{"newsletter", "digest", "update", "news"}, Weight: 5},
			{Field: FieldBody, Keywords: []string{"artificial intelligence", "machine learning", "technology", "innovation"}, Weight: 3},
		},
		LongBodyLen:    1000,
		LongBodyWeight: 5,
	}
}

func (w Weights) Validate() error {
	for i, r := range w.Rules {
		switch r.Field {
		case FieldSubject, FieldSender, FieldBody:
		default:
			return fmt.Errorf("scoring rule %d: unknown field %q", i, r.Field)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("scoring rule %d: no keywords", i)
		}
	}
	if w.LongBodyLen < 0 {
		return fmt.Errorf("scoring: long_body_len must be >= 0")
	}
	return nil
}

// Scorer ranks candidates. The zero value scores everything 0.
type Scorer struct {
	rules   []Rule
	longLen int
	longWgt int
}

func NewScorer(w Weights) *Scorer {
	s := &Scorer{longLen: w.LongBodyLen, longWgt: w.LongBodyWeight}
	for _, r := range w.Rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		s.rules = append(s.rules, Rule{Field: r.Field, Keywords: kw, Weight: r.Weight})
	}
	return s
}

func (s *Scorer) Score(c Candidate) int {
	if s == nil {
		return 0
	}
	subject := strings.ToLower(c.Item.Title)
	sender := strings.ToLower(c.Sender)
	body := strings.ToLower(c.Item.Body)

	score := 0
	for _, r := range s.rules {
		var text string
		switch r.Field {
		case FieldSubject:
			text = subject
		case FieldSender:
			text = sender
		case FieldBody:
			text = body
		}
		if containsAny(text, r.Keywords) {
			score += r.Weight
		}
	}
	if s.longWgt != 0 && c.Item.Len() > s.longLen {
		score += s.longWgt
	}
	return score
}

// Best returns the index of the highest scoring candidate; ties keep the earlier one.
func (s *Scorer) Best(cands []Candidate) (idx, score int) {
	idx = -1
	for i, c := range cands {
		sc := s.Score(c)
		if idx < 0 || sc > score {
			idx, score = i, sc
		}
	}
	return idx, score
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
