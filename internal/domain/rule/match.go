package rule

import (
	"regexp"
	"strings"
	"sync"
)

// regexCache memoizes compiled patterns. Rule sets are small and
// evaluated on every inquiry, so avoiding a recompile per hit matters.
var regexCache sync.Map // string -> *regexp.Regexp (or nil on compile failure)

func compileCached(pattern string) *regexp.Regexp {
	if v, ok := regexCache.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		regexCache.Store(pattern, (*regexp.Regexp)(nil))
		return nil
	}
	regexCache.Store(pattern, re)
	return re
}

// wildcardToRegex converts a '*'-as-wildcard pattern into an anchored
// regular expression, escaping every other character literally.
func wildcardToRegex(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, part := range strings.Split(pattern, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	s := b.String()
	// strings.Split on "*" always yields len(parts)-1 "*"s between parts,
	// so the trailing ".*" from the loop is one too many; trim it and anchor.
	s = strings.TrimSuffix(s, ".*")
	return s + "$"
}

// matches evaluates a single Condition against an observed value.
// A regex compile failure (malformed pattern) evaluates to false rather
// than aborting the rule it belongs to.
func matches(c Condition, value string) bool {
	return MatchValue(c.Match, c.Value, value)
}

// MatchValue evaluates a single match kind/pattern pair against an observed
// value, using the same exact/regex/wildcard semantics as rule conditions.
// Exported for other domain packages (ratelimit limiters reuse the same
// three match kinds).
func MatchValue(kind MatchKind, pattern, value string) bool {
	switch kind {
	case MatchExact:
		return value == pattern
	case MatchRegex:
		re := compileCached(pattern)
		if re == nil {
			return false
		}
		loc := re.FindStringIndex(value)
		return loc != nil && loc[0] == 0
	case MatchWildcard:
		re := compileWildcard(pattern)
		return re != nil && re.MatchString(value)
	default:
		return false
	}
}

// compileWildcard compiles and caches the regex form of a wildcard pattern
// under a namespaced cache key so it never collides with a literal regex
// condition that happens to share the same text.
func compileWildcard(pattern string) *regexp.Regexp {
	key := "wildcard:" + pattern
	if v, ok := regexCache.Load(key); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(wildcardToRegex(pattern))
	if err != nil {
		regexCache.Store(key, (*regexp.Regexp)(nil))
		return nil
	}
	regexCache.Store(key, re)
	return re
}
