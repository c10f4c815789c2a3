package matcher

import (
	"sort"
	"strings"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
)

type compiledProject struct {
	name     string
	terms    []string
	keywords []string
}

// Matcher attributes post text to projects. It is built from one snapshot
// of the project collection and never refreshes itself.
type Matcher struct {
	projects []compiledProject
}

// New compiles a snapshot. Projects are matched in name order so results
// are deterministic.
func New(projects []models.Project) *Matcher {
	compiled := make([]compiledProject, 0, len(projects))
	for _, p := range projects {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		cp := compiledProject{name: strings.ToUpper(name)}
		cp.terms = appendTerm(cp.terms, strings.ToLower(name))
		if handle := strings.TrimPrefix(strings.TrimSpace(p.Handle), "@"); handle != "" {
			cp.terms = appendTerm(cp.terms, "@"+strings.ToLower(handle))
		}
		for _, kw := range p.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			cp.keywords = appendTerm(cp.keywords, kw)
			cp.terms = appendTerm(cp.terms, kw)
		}
		compiled = append(compiled, cp)
	}
	sort.SliceStable(compiled, func(i, j int) bool { return compiled[i].name < compiled[j].name })
	return &Matcher{projects: compiled}
}

// Len is the number of projects in the snapshot.
func (m *Matcher) Len() int { return len(m.projects) }

// Match returns the names of every project the text is attributed to.
// Replies only match on keywords.
func (m *Matcher) Match(text string, origin models.Origin) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, p := range m.projects {
		if p.matches(lower, origin == models.OriginReply) {
			matched = append(matched, p.name)
		}
	}
	return dedupe(matched)
}

func (p compiledProject) matches(lower string, keywordsOnly bool) bool {
	for _, kw := range p.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if keywordsOnly {
		return false
	}
	for _, term := range p.terms {
		if strings.Contains(lower, term) || strings.Contains(lower, "@"+term) {
			return true
		}
	}
	return false
}

func appendTerm(terms []string, term string) []string {
	if term == "" {
		return terms
	}
	for _, t := range terms {
		if t == term {
			return terms
		}
	}
	return append(terms, term)
}

func dedupe(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
