// Package match decides whether a submitted guess names the expected answer.
package match

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultFuzzyThreshold is the similarity ratio accepted by FuzzyRatio when
// no threshold is configured.
const DefaultFuzzyThreshold = 0.85

var lower = cases.Lower(language.Und)

// Normalize lowercases s, removes punctuation, collapses internal whitespace
// and trims the result. Letters, digits and underscores are kept.
func Normalize(s string) string {
	s = lower.String(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Strategy accepts or rejects an already normalized guess for an already
// normalized answer.
type Strategy interface {
	Name() string
	Accept(guess, answer string) bool
}

// Exact accepts identical strings.
type Exact struct{}

func (Exact) Name() string { return "exact" }

func (Exact) Accept(guess, answer string) bool { return guess == answer }

// Substring accepts when either string contains the other.
type Substring struct{}

func (Substring) Name() string { return "substring" }

func (Substring) Accept(guess, answer string) bool {
	if guess == "" || answer == "" {
		return false
	}
	return strings.Contains(answer, guess) || strings.Contains(guess, answer)
}

// TokenOverlap accepts when guess and answer share at least one word.
type TokenOverlap struct{}

func (TokenOverlap) Name() string { return "token" }

func (TokenOverlap) Accept(guess, answer string) bool {
	tokens := make(map[string]struct{})
	for _, t := range strings.Fields(answer) {
		tokens[t] = struct{}{}
	}
	for _, t := range strings.Fields(guess) {
		if _, ok := tokens[t]; ok {
			return true
		}
	}
	return false
}

// FuzzyRatio accepts when Ratio(guess, answer) reaches Threshold.
type FuzzyRatio struct {
	Threshold float64
}

func (FuzzyRatio) Name() string { return "fuzzy" }

func (f FuzzyRatio) Accept(guess, answer string) bool {
	return Ratio(guess, answer) >= f.Threshold
}

// Ratio returns 2*LCS/(len(a)+len(b)) over runes, in [0,1]. Two empty
// strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(lcs(ra, rb)) / float64(total)
}

func lcs(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// AliasTable accepts a short alias whose canonical name is the answer, e.g.
// "naruto" -> "naruto uzumaki".
type AliasTable struct {
	aliases map[string]string
}

// NewAliasTable normalizes both sides of every entry.
func NewAliasTable(aliases map[string]string) AliasTable {
	t := AliasTable{aliases: make(map[string]string, len(aliases))}
	for alias, canonical := range aliases {
		a := Normalize(alias)
		if a == "" {
			continue
		}
		t.aliases[a] = Normalize(canonical)
	}
	return t
}

func (AliasTable) Name() string { return "alias" }

func (t AliasTable) Accept(guess, answer string) bool {
	canonical, ok := t.aliases[guess]
	return ok && canonical == answer
}

// Policy is an ordered list of strategies tried until one accepts.
type Policy []Strategy

// Match normalizes both inputs and runs the strategies in order. An empty
// guess never matches.
func (p Policy) Match(guess, answer string) bool {
	g, a := Normalize(guess), Normalize(answer)
	if g == "" {
		return false
	}
	for _, s := range p {
		if s.Accept(g, a) {
			return true
		}
	}
	return false
}

// Names lists the strategy names in evaluation order.
func (p Policy) Names() []string {
	out := make([]string, 0, len(p))
	for _, s := range p {
		out = append(out, s.Name())
	}
	return out
}

// IsMatch reports whether guess matches answer under policy.
func IsMatch(guess, answer string, policy Policy) bool {
	return policy.Match(guess, answer)
}

// ParsePolicy builds a policy from strategy names in order. Accepted names
// are exact, substring, token, fuzzy and alias. A zero threshold selects
// DefaultFuzzyThreshold; anything outside (0, 1] is an error.
func ParsePolicy(names []string, threshold float64, aliases map[string]string) (Policy, error) {
	switch {
	case threshold == 0:
		threshold = DefaultFuzzyThreshold
	case threshold < 0 || threshold > 1:
		return nil, fmt.Errorf("fuzzy threshold %v out of range (0, 1]", threshold)
	}
	policy := make(Policy, 0, len(names))
	seen := make(map[string]bool)
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "exact":
			policy = append(policy, Exact{})
		case "substring":
			policy = append(policy, Substring{})
		case "token", "token_overlap":
			policy = append(policy, TokenOverlap{})
		case "fuzzy", "fuzzy_ratio":
			policy = append(policy, FuzzyRatio{Threshold: threshold})
		case "alias", "aliases":
			policy = append(policy, NewAliasTable(aliases))
		default:
			return nil, fmt.Errorf("unknown match strategy %q", raw)
		}
	}
	if len(policy) == 0 {
		return nil, fmt.Errorf("match policy is empty")
	}
	return policy, nil
}
