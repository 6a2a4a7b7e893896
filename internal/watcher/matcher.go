package watcher

import (
	"regexp"
	"strings"
)

// Matcher inspects one output line and reports whether it carries the
// signal being waited for, and the value to extract from it.
//
// Tool log formats are not a contract. Matchers are built from configured
// patterns so a format change upstream is a config edit, not a code change.
type Matcher interface {
	Match(line string) (value string, ok bool)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(line string) (string, bool)

// Match calls f.
func (f MatcherFunc) Match(line string) (string, bool) { return f(line) }

// Substring matches lines containing s; the value is the trimmed line.
func Substring(s string) Matcher {
	return MatcherFunc(func(line string) (string, bool) {
		if s == "" || !strings.Contains(line, s) {
			return "", false
		}
		return strings.TrimSpace(line), true
	})
}

// Regexp matches lines against re. The value is the first capture group when
// the pattern has one, otherwise the whole match.
func Regexp(re *regexp.Regexp) Matcher {
	return MatcherFunc(func(line string) (string, bool) {
		m := re.FindStringSubmatch(line)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	})
}

// URL extracts the first https:// token on a line whose text matches host.
// The token ends at the first whitespace. A nil host accepts any https URL.
func URL(host *regexp.Regexp) Matcher {
	return MatcherFunc(func(line string) (string, bool) {
		rest := line
		for {
			i := strings.Index(rest, "https://")
			if i < 0 {
				return "", false
			}
			tok := rest[i:]
			if j := strings.IndexAny(tok, " \t\r\n|"); j >= 0 {
				tok = tok[:j]
			}
			if host == nil || host.MatchString(tok) {
				return tok, true
			}
			rest = rest[i+len("https://"):]
		}
	})
}

// Sequence remembers the value of first and releases it only when a later
// (or the same) line satisfies confirm. The tunnel client prints its URL
// before the edge connection is registered; waiting for both avoids handing
// out a URL that does not route yet.
func Sequence(first, confirm Matcher) Matcher {
	var captured string
	return MatcherFunc(func(line string) (string, bool) {
		if captured == "" {
			if v, ok := first.Match(line); ok {
				captured = v
			}
		}
		if captured == "" {
			return "", false
		}
		if _, ok := confirm.Match(line); ok {
			return captured, true
		}
		return "", false
	})
}
