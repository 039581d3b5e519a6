// Package pagerange turns user page specifications such as "1,3,5-7" into
// zero-based page index sets.
package pagerange

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptySelection is returned when a specification resolves to no pages.
var ErrEmptySelection = errors.New("page selection is empty")

var (
	singleRe = regexp.MustCompile(`^(\d+)$`)
	rangeRe  = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)$`)
)

// Parse resolves spec against a document with pageCount pages and returns
// the selected zero-based indices in ascending order without duplicates.
//
// Tokens that are not numbers or ranges, and pages outside [1, pageCount],
// are dropped. A reversed range such as "5-2" selects nothing.
func Parse(spec string, pageCount int) ([]int, error) {
	seen := make(map[int]struct{})
	for _, raw := range strings.Split(spec, ",") {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}
		if m := rangeRe.FindStringSubmatch(tok); m != nil {
			start, err1 := strconv.Atoi(m[1])
			end, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil || start > end {
				continue
			}
			if start < 1 {
				start = 1
			}
			if end > pageCount {
				end = pageCount
			}
			for p := start; p <= end; p++ {
				seen[p-1] = struct{}{}
			}
			continue
		}
		if m := singleRe.FindStringSubmatch(tok); m != nil {
			p, err := strconv.Atoi(m[1])
			if err != nil || p < 1 || p > pageCount {
				continue
			}
			seen[p-1] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, ErrEmptySelection
	}
	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}

// Complement returns every index in [0, pageCount) that is not in remove,
// in ascending order.
func Complement(remove []int, pageCount int) []int {
	drop := make(map[int]struct{}, len(remove))
	for _, idx := range remove {
		drop[idx] = struct{}{}
	}
	keep := make([]int, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if _, ok := drop[i]; !ok {
			keep = append(keep, i)
		}
	}
	return keep
}

// All returns the indices 0..pageCount-1.
func All(pageCount int) []int {
	out := make([]int, pageCount)
	for i := range out {
		out[i] = i
	}
	return out
}

// Format renders ascending zero-based indices in compact one-based form,
// e.g. [0 1 2 4] becomes "1-3,5".
func Format(indices []int) string {
	if len(indices) == 0 {
		return ""
	}
	var b strings.Builder
	start, prev := indices[0], indices[0]
	flush := func() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if start == prev {
			b.WriteString(strconv.Itoa(start + 1))
			return
		}
		b.WriteString(strconv.Itoa(start + 1))
		b.WriteByte('-')
		b.WriteString(strconv.Itoa(prev + 1))
	}
	for _, idx := range indices[1:] {
		if idx == prev+1 {
			prev = idx
			continue
		}
		flush()
		start, prev = idx, idx
	}
	flush()
	return b.String()
}
