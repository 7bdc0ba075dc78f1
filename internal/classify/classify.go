// Package classify flags safety-critical message content.
package classify

import "strings"

// builtinKeywords is the fixed safety vocabulary. Matching is deliberately a
// broad case-insensitive substring search: a false positive only triggers a
// confirmation prompt, while a missed emergency is the costly failure.
var builtinKeywords = []string{
	"emergency",
	"help",
	"911",
	"sos",
	"urgent",
	"danger",
	"fire",
	"medical",
	"police",
}

// Classifier decides whether message text looks safety-critical. It is pure
// and stateless; the verdict is recomputed on demand, never cached.
type Classifier struct {
	keywords []string
}

// New creates a classifier with the built-in keyword set plus any extra
// keywords from configuration. The built-in set cannot be removed.
func New(extra ...string) *Classifier {
	kw := make([]string, 0, len(builtinKeywords)+len(extra))
	kw = append(kw, builtinKeywords...)
	for _, e := range extra {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			kw = append(kw, e)
		}
	}
	return &Classifier{keywords: kw}
}

// IsEmergency reports whether text contains any emergency keyword.
func (c *Classifier) IsEmergency(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
