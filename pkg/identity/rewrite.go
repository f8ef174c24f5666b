package identity

import (
	"regexp"
	"strconv"
	"sync"
)

var linkPatterns sync.Map // prefix -> *regexp.Regexp

func linkPattern(prefix string) *regexp.Regexp {
	if re, ok := linkPatterns.Load(prefix); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(regexp.QuoteMeta(prefix) + `([0-9]+)`)
	linkPatterns.Store(prefix, re)
	return re
}

// RewriteReferences replaces every link "<prefix><id>" in body whose id is a
// key of mapping with the mapped id, and returns the new body and the number
// of links changed. Ids missing from mapping are left alone. Substitution is
// a single pass, so a mapping such as {1: 2, 2: 3} never rewrites a link
// twice.
func RewriteReferences(body, prefix string, mapping map[int]int) (string, int) {
	if body == "" || prefix == "" || len(mapping) == 0 {
		return body, 0
	}

	count := 0
	out := linkPattern(prefix).ReplaceAllStringFunc(body, func(link string) string {
		id, err := strconv.Atoi(link[len(prefix):])
		if err != nil {
			return link
		}
		to, ok := mapping[id]
		if !ok || to == id {
			return link
		}
		count++
		return prefix + strconv.Itoa(to)
	})
	return out, count
}
