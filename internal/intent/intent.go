package intent

import "strings"

type Kind string

const (
	None             Kind = "none"
	Greeting         Kind = "greeting"
	Thanks           Kind = "thanks"
	Goodbye          Kind = "goodbye"
	SQLRequest       Kind = "sql_request"
	BreakdownRequest Kind = "breakdown_request"
	ListTables       Kind = "list_tables"
	ListQuestions    Kind = "list_questions"
)

// Remote reports whether the intent is answered by the analytics service
// rather than by a canned reply.
func (k Kind) Remote() bool {
	switch k {
	case None, SQLRequest, BreakdownRequest:
		return true
	}
	return false
}

// Classifier resolves utterances against a fixed vocabulary. It holds no
// mutable state, so one instance can serve every session.
type Classifier struct {
	greetings map[string]struct{}
	thanks    map[string]struct{}
	goodbyes  map[string]struct{}
	// keyword lists in priority order
	keywords []keywordRule
}

type keywordRule struct {
	kind     Kind
	keywords []string
}

func NewClassifier(v Vocabulary) *Classifier {
	return &Classifier{
		greetings: toSet(v.Exact.Greeting),
		thanks:    toSet(v.Exact.Thanks),
		goodbyes:  toSet(v.Exact.Goodbye),
		keywords: []keywordRule{
			{kind: SQLRequest, keywords: normalizeAll(v.Keywords.SQLRequest)},
			{kind: BreakdownRequest, keywords: normalizeAll(v.Keywords.BreakdownRequest)},
			{kind: ListTables, keywords: normalizeAll(v.Keywords.ListTables)},
			{kind: ListQuestions, keywords: normalizeAll(v.Keywords.ListQuestions)},
		},
	}
}

// Classify maps an utterance to its intent. Exact phrase sets are checked
// before keyword lists; the first match wins.
func (c *Classifier) Classify(utterance string) Kind {
	m := Normalize(utterance)
	if m == "" {
		return None
	}
	if _, ok := c.greetings[m]; ok {
		return Greeting
	}
	if _, ok := c.thanks[m]; ok {
		return Thanks
	}
	if _, ok := c.goodbyes[m]; ok {
		return Goodbye
	}
	for _, rule := range c.keywords {
		if containsAny(m, rule.keywords) {
			return rule.kind
		}
	}
	return None
}

func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func toSet(phrases []string) map[string]struct{} {
	out := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		if n := Normalize(p); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}
