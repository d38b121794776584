package corepay

import (
	"context"
	"regexp"
)

// RecipientMode is the polarity of a RecipientGuard.
type RecipientMode string

const (
	RecipientModeWhitelist RecipientMode = "whitelist"
	RecipientModeBlacklist RecipientMode = "blacklist"
)

// RecipientGuard allows or blocks payments based on recipient shape, per
// spec.md §4.3. Evaluation order is exact address match, then URL domain
// substring, then regex pattern; the first source that matches decides the
// outcome.
type RecipientGuard struct {
	Mode     RecipientMode
	Exact    map[string]bool
	Domains  []string
	Patterns []*regexp.Regexp
}

// NewRecipientGuard builds a guard with the given match sources. exact
// entries are address strings; domains are substrings matched against a URL
// recipient's host; patterns are compiled regexes matched against the raw
// recipient string.
func NewRecipientGuard(mode RecipientMode, exact []string, domains []string, patterns []string) (*RecipientGuard, error) {
	exactSet := make(map[string]bool, len(exact))
	for _, e := range exact {
		exactSet[e] = true
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, Errorf(ErrConfiguration, "invalid recipient guard pattern %q: %v", p, err)
		}
		compiled = append(compiled, re)
	}
	return &RecipientGuard{Mode: mode, Exact: exactSet, Domains: domains, Patterns: compiled}, nil
}

func (g *RecipientGuard) Name() string { return "recipient" }

func (g *RecipientGuard) matches(recipient string) bool {
	if g.Exact[recipient] {
		return true
	}
	for _, d := range g.Domains {
		if DomainMatches(recipient, d) {
			return true
		}
	}
	for _, p := range g.Patterns {
		if p.MatchString(recipient) {
			return true
		}
	}
	return false
}

func (g *RecipientGuard) Check(ctx context.Context, in GuardInput) (bool, string) {
	matched := g.matches(in.Recipient)
	switch g.Mode {
	case RecipientModeWhitelist:
		if !matched {
			return false, "recipient is not on the whitelist"
		}
		return true, ""
	default: // blacklist
		if matched {
			return false, "recipient is on the blacklist"
		}
		return true, ""
	}
}

func (g *RecipientGuard) Reserve(ctx context.Context, in GuardInput) (string, error) {
	if allow, reason := g.Check(ctx, in); !allow {
		return "", GuardBlocked(g.Name(), reason)
	}
	return "recipient", nil
}

func (g *RecipientGuard) Commit(ctx context.Context, token string) error   { return nil }
func (g *RecipientGuard) Release(ctx context.Context, token string) error { return nil }
