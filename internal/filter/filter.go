// Package filter decides which items are published.
//
// A Chain is an ordered list of pure predicates evaluated with
// short-circuit semantics: the first rule that rejects wins and is reported
// in the Decision.
package filter

import (
	"strings"

	"releasepush/internal/domain"
)

// Rule names, as reported in Decision.Rule and in run reports.
const (
	RuleReleasedOn     = "released_on"
	RuleLocalizedTitle = "localized_title"
	RuleLanguage       = "language"
	RuleGenre          = "genre"
	RuleCover          = "cover"
	RuleProvider       = "provider"
)

// Rule is a named predicate. Accept must not mutate its arguments.
type Rule struct {
	Name   string
	Accept func(it domain.Item, s domain.FilterSettings) bool
}

// Decision is the outcome of evaluating a chain. Rule names the rejecting
// rule and is empty when the item was accepted.
type Decision struct {
	Accepted bool
	Rule     string
}

type Chain struct {
	rules []Rule
}

func New(rules ...Rule) Chain {
	return Chain{rules: append([]Rule(nil), rules...)}
}

// Default returns the standard chain: localized title, language, genre,
// cover, provider. reference is the language that counts as localized.
func Default(reference string) Chain {
	return New(
		LocalizedTitle(reference),
		Language(),
		Genre(),
		Cover(),
		Provider(),
	)
}

// Prepend returns a new chain with rules evaluated before c's own.
func (c Chain) Prepend(rules ...Rule) Chain {
	out := make([]Rule, 0, len(rules)+len(c.rules))
	out = append(out, rules...)
	out = append(out, c.rules...)
	return Chain{rules: out}
}

// Names lists the rules in evaluation order.
func (c Chain) Names() []string {
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.Name)
	}
	return out
}

func (c Chain) Evaluate(it domain.Item, s domain.FilterSettings) Decision {
	for _, r := range c.rules {
		if r.Accept == nil {
			continue
		}
		if !r.Accept(it, s) {
			return Decision{Rule: r.Name}
		}
	}
	return Decision{Accepted: true}
}

// LocalizedTitle rejects items whose display title was never localized: the
// title equals the original title while the original language is not the
// reference language. Only active when LocalizedTitleOnly is set.
func LocalizedTitle(reference string) Rule {
	reference = strings.TrimSpace(reference)
	return Rule{Name: RuleLocalizedTitle, Accept: func(it domain.Item, s domain.FilterSettings) bool {
		if !s.LocalizedTitleOnly {
			return true
		}
		return !(it.Title == it.OriginalTitle && it.OriginalLanguage != reference)
	}}
}

// Language rejects items whose language is present but not allow-listed.
// An empty allow-list rejects every item that carries a language.
func Language() Rule {
	return Rule{Name: RuleLanguage, Accept: func(it domain.Item, s domain.FilterSettings) bool {
		lang := strings.TrimSpace(it.OriginalLanguage)
		if lang == "" {
			return true
		}
		for _, l := range s.Languages {
			if strings.EqualFold(strings.TrimSpace(l), lang) {
				return true
			}
		}
		return false
	}}
}

func Genre() Rule {
	return Rule{Name: RuleGenre, Accept: func(it domain.Item, s domain.FilterSettings) bool {
		if len(s.BlockGenres) == 0 {
			return true
		}
		for _, k := range it.GenreKeys() {
			if s.BlockGenres.Contains(k) {
				return false
			}
		}
		return true
	}}
}

func Cover() Rule {
	return Rule{Name: RuleCover, Accept: func(it domain.Item, s domain.FilterSettings) bool {
		if !s.RequireCover {
			return true
		}
		return it.HasCover(s.BackdropOnly)
	}}
}

// Provider rejects items whose network/provider id is present but not
// allow-listed. Same empty-list semantics as Language.
func Provider() Rule {
	return Rule{Name: RuleProvider, Accept: func(it domain.Item, s domain.FilterSettings) bool {
		if it.ProviderID == nil {
			return true
		}
		for _, id := range s.Providers {
			if id == *it.ProviderID {
				return true
			}
		}
		return false
	}}
}

// ReleasedOn keeps only items released on the given MMDD day. Items with an
// unknown release date are rejected.
func ReleasedOn(mmdd string) Rule {
	return Rule{Name: RuleReleasedOn, Accept: func(it domain.Item, _ domain.FilterSettings) bool {
		return it.ReleaseDate != "" && it.ReleaseDate == mmdd
	}}
}
