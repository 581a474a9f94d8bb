package search

import (
	"fmt"
	"regexp"
	"strings"
)

type matcher func(value string) bool

// newMatcher builds the predicate for q. emptyArgs is the encoding of an
// empty argument list, the only value an empty term matches.
func newMatcher(q Query, emptyArgs string) (matcher, error) {
	switch {
	case q.Term == "":
		return func(value string) bool { return value == emptyArgs }, nil
	case q.Regex:
		pattern := q.Term
		if q.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile search pattern: %w", err)
		}
		return re.MatchString, nil
	case q.CaseInsensitive:
		term := strings.ToLower(q.Term)
		return func(value string) bool {
			return strings.Contains(strings.ToLower(value), term)
		}, nil
	default:
		return func(value string) bool { return strings.Contains(value, q.Term) }, nil
	}
}
