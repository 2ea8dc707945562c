package httpmetrics

import (
	"fmt"
	"regexp"
)

// exclusionRules decides whether a completed request's duration and size
// observations should be recorded. The active-request gauge is exempt: its
// increment/decrement pair must always balance, so exclusion never applies
// to it.
type exclusionRules struct {
	paths    map[string]struct{}
	patterns []*regexp.Regexp
	statuses map[int]struct{}
}

func newExclusionRules(paths, patterns []string, statuses []int) (*exclusionRules, error) {
	rules := &exclusionRules{
		paths:    make(map[string]struct{}, len(paths)),
		statuses: make(map[int]struct{}, len(statuses)),
	}
	for _, p := range paths {
		rules.paths[p] = struct{}{}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling exclusion pattern %q: %w", p, err)
		}
		rules.patterns = append(rules.patterns, re)
	}
	for _, s := range statuses {
		rules.statuses[s] = struct{}{}
	}
	return rules, nil
}

// shouldRecord reports whether observations for the given route label and
// status code should be emitted.
func (e *exclusionRules) shouldRecord(routeLabel string, status int) bool {
	if _, ok := e.paths[routeLabel]; ok {
		return false
	}
	for _, re := range e.patterns {
		if re.MatchString(routeLabel) {
			return false
		}
	}
	if _, ok := e.statuses[status]; ok {
		return false
	}
	return true
}
