package risk

import (
	"fmt"
	"regexp"
	"strings"
)

// Match is one hit a matcher found in a text unit.
type Match struct {
	Excerpt string
	Start   int
	End     int
}

// RuleMatcher finds occurrences of a concern in free text. Implementations
// must be safe for concurrent use; future matchers (ML scorers) plug in here
// without changing the classifier or store contracts.
type RuleMatcher interface {
	Match(text string) []Match
}

// Rule binds a matcher to the signal type, severity and confidence it
// declares. Severity and confidence are rule data, not code: point values
// are tuned per rule set version.
type Rule struct {
	ID             string
	Type           SignalType
	Severity       Severity
	BaseConfidence int
	Matcher        RuleMatcher
}

// RuleSet is an ordered, versioned table of rules. Order is the evaluation
// order for extraction; the classifier breaks same-type ties by severity,
// then confidence, then lowest rule ID.
type RuleSet struct {
	version string
	rules   []Rule
}

// NewRuleSet builds a rule set, rejecting duplicate rule IDs.
func NewRuleSet(version string, rules []Rule) (*RuleSet, error) {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("risk: rule with empty id")
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("risk: duplicate rule id %q", r.ID)
		}
		if r.Matcher == nil {
			return nil, fmt.Errorf("risk: rule %q has no matcher", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return &RuleSet{version: version, rules: rules}, nil
}

// Version returns the rule set version tag.
func (rs *RuleSet) Version() string { return rs.version }

// Rules returns the rules in table order.
func (rs *RuleSet) Rules() []Rule { return rs.rules }

// RuleSetByVersion returns the built-in rule table with the given version
// tag. An empty version selects the current default.
func RuleSetByVersion(version string) (*RuleSet, error) {
	switch version {
	case "", "builtin-v1":
		return DefaultRuleSet(), nil
	default:
		return nil, fmt.Errorf("risk: unknown rule set version %q", version)
	}
}

// phraseMatcher matches any of a list of phrases on word boundaries,
// case-insensitively.
type phraseMatcher struct {
	re *regexp.Regexp
}

// Phrases builds a matcher for literal phrases. Whitespace inside a phrase
// matches any run of whitespace.
func Phrases(phrases ...string) RuleMatcher {
	alts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		parts := strings.Fields(p)
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}
		alts = append(alts, strings.Join(parts, `\s+`))
	}
	re := regexp.MustCompile(`(?i)\b(` + strings.Join(alts, "|") + `)\b`)
	return &phraseMatcher{re: re}
}

func (m *phraseMatcher) Match(text string) []Match {
	return matchAll(m.re, text)
}

// regexMatcher wraps an arbitrary pattern.
type regexMatcher struct {
	re *regexp.Regexp
}

// Pattern builds a matcher from a regular expression.
func Pattern(expr string) RuleMatcher {
	return &regexMatcher{re: regexp.MustCompile(expr)}
}

func (m *regexMatcher) Match(text string) []Match {
	return matchAll(m.re, text)
}

func matchAll(re *regexp.Regexp, text string) []Match {
	idx := re.FindAllStringIndex(text, -1)
	if idx == nil {
		return nil
	}
	matches := make([]Match, 0, len(idx))
	for _, pair := range idx {
		matches = append(matches, Match{
			Excerpt: text[pair[0]:pair[1]],
			Start:   pair[0],
			End:     pair[1],
		})
	}
	return matches
}

// DefaultRuleSet returns the built-in rule table. IDs are stable: they are
// persisted in signal evidence and referenced by counselors.
func DefaultRuleSet() *RuleSet {
	rules := []Rule{
		{
			ID: "suicidal-direct", Type: SignalSuicidal,
			Severity: SeverityCritical, BaseConfidence: 95,
			Matcher: Phrases(
				"kill myself", "end it all", "end my life", "want to die",
				"suicide", "suicidal", "better off dead", "take my own life",
			),
		},
		{
			ID: "suicidal-passive", Type: SignalSuicidal,
			Severity: SeverityHigh, BaseConfidence: 80,
			Matcher: Phrases(
				"no reason to live", "wish i was dead", "wish i were dead",
				"don't want to be here anymore", "can't go on",
			),
		},
		{
			ID: "self-harm-direct", Type: SignalSelfHarm,
			Severity: SeverityHigh, BaseConfidence: 85,
			Matcher: Phrases(
				"hurt myself", "hurting myself", "cut myself", "cutting myself",
				"self harm", "self-harm", "harming myself",
			),
		},
		{
			ID: "substance-overdose", Type: SignalSubstance,
			Severity: SeverityHigh, BaseConfidence: 85,
			Matcher: Phrases("overdose", "overdosed", "took too many pills"),
		},
		{
			ID: "substance-relapse", Type: SignalSubstance,
			Severity: SeverityMedium, BaseConfidence: 70,
			Matcher: Phrases(
				"drinking too much", "drinking again", "using again", "relapsed",
				"can't stop drinking",
			),
		},
		{
			ID: "depression-severe", Type: SignalDepression,
			Severity: SeverityMedium, BaseConfidence: 70,
			Matcher: Phrases(
				"hopeless", "worthless", "empty inside", "hate myself",
				"can't get out of bed", "nothing matters",
			),
		},
		{
			ID: "depression-mild", Type: SignalDepression,
			Severity: SeverityLow, BaseConfidence: 55,
			Matcher: Phrases(
				"feel down", "feeling down", "a bit down", "so sad",
				"feel depressed", "feeling depressed",
			),
		},
		{
			ID: "anxiety-acute", Type: SignalAnxiety,
			Severity: SeverityMedium, BaseConfidence: 65,
			Matcher: Phrases(
				"panic attack", "can't breathe", "heart is racing",
				"constant worry", "can't stop worrying",
			),
		},
		{
			ID: "anxiety-general", Type: SignalAnxiety,
			Severity: SeverityLow, BaseConfidence: 50,
			Matcher: Phrases("so anxious", "really nervous", "on edge"),
		},
	}

	rs, err := NewRuleSet("builtin-v1", rules)
	if err != nil {
		panic(err)
	}
	return rs
}
