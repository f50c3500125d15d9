package extract

import (
	"fmt"
	"sort"
	"strings"

	"sfextract/internal/describe"
)

// SelectObjects filters the queryable objects: only white-listed ones when
// the white list is non-empty, never black-listed ones. Names in either list
// that are not queryable are an error. Matching is case-insensitive; the
// result uses the remote spelling, sorted.
func SelectObjects(queryable, white, black []string) ([]string, error) {
	known := make(map[string]string, len(queryable))
	for _, n := range queryable {
		known[describe.Key(n)] = n
	}

	whiteSet, badWhite := index(known, white)
	blackSet, badBlack := index(known, black)
	var problems []string
	if len(badWhite) > 0 {
		problems = append(problems, fmt.Sprintf("invalid SObject name %s in white list", strings.Join(badWhite, ", ")))
	}
	if len(badBlack) > 0 {
		problems = append(problems, fmt.Sprintf("invalid SObject name %s in black list", strings.Join(badBlack, ", ")))
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("extract: %s", strings.Join(problems, "; "))
	}

	var out []string
	for k, n := range known {
		if len(whiteSet) > 0 && !whiteSet[k] {
			continue
		}
		if blackSet[k] {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, ErrNoQualifiedObjects
	}
	sort.Strings(out)
	return out, nil
}

func index(known map[string]string, names []string) (map[string]bool, []string) {
	set := make(map[string]bool, len(names))
	var bad []string
	for _, n := range names {
		k := describe.Key(n)
		if _, ok := known[k]; !ok {
			bad = append(bad, n)
			continue
		}
		set[k] = true
	}
	return set, bad
}
