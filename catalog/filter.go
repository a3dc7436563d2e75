package catalog

import "regexp"

// Contains reports whether v is present in elems.
func Contains(elems []string, v string) bool {
	for _, s := range elems {
		if v == s {
			return true
		}
	}
	return false
}

// IsMatchAny reports whether text matches any of the regular expressions.
// An empty list matches everything.
func IsMatchAny(regexList []*regexp.Regexp, text string) bool {
	if len(regexList) == 0 {
		return true
	}
	for _, regex := range regexList {
		if regex.MatchString(text) {
			return true
		}
	}
	return false
}
