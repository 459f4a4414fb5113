package processor

import (
	"fmt"
	"time"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
)

// span is the half-open range [lo, hi) a date value stands for. An open end is unbounded.
// A span without a zone is local time, held as UTC wall-clock time.
type span struct {
	lo, hi         time.Time
	openLo, openHi bool
	zoned          bool
}

func parseSpan(value string) (span, error) {
	dt, err := fhir.ParseDateTime(value)
	if err != nil {
		return span{}, err
	}
	lo, hi := dt.Bounds()
	return span{lo: lo, hi: hi, zoned: dt.Zoned}, nil
}

// spanOf reads a date, dateTime, instant or Period element.
func spanOf(node *resource.Node) (span, bool) {
	switch node.Kind {
	case resource.String:
		s, err := parseSpan(node.Str)
		return s, err == nil
	case resource.Object:
		start, hasStart := node.Get("start").Text()
		end, hasEnd := node.Get("end").Text()
		if !hasStart && !hasEnd {
			return span{}, false
		}
		s := span{openLo: !hasStart, openHi: !hasEnd}
		if hasStart {
			from, err := parseSpan(start)
			if err != nil {
				return span{}, false
			}
			s.lo = from.lo
			s.zoned = from.zoned
		}
		if hasEnd {
			to, err := parseSpan(end)
			if err != nil {
				return span{}, false
			}
			s.hi = to.hi
			s.zoned = s.zoned || to.zoned
		}
		return s, true
	}
	return span{}, false
}

// within reports whether target lies entirely inside search.
func (search span) within(target span) bool {
	if target.openLo || target.openHi {
		return false
	}
	return !target.lo.Before(search.lo) && !target.hi.After(search.hi)
}

// local drops the zone of a zoned span, keeping the clock readings of both ends.
func (s span) local() span {
	if s.zoned {
		s.lo, s.hi = fhir.WallClock(s.lo), fhir.WallClock(s.hi)
		s.zoned = false
	}
	return s
}

// compare applies a prefix. When only one side carries a zone, both are compared as
// local times, so 2020-01-01 matches 2020-01-01T23:30:00-05:00.
func (search span) compare(c comparator, target span) bool {
	if search.zoned != target.zoned {
		search, target = search.local(), target.local()
	}

	switch c {
	case cmpEq:
		return search.within(target)
	case cmpNe:
		return !search.within(target)
	case cmpGt:
		return target.openHi || target.hi.After(search.hi)
	case cmpLt:
		return target.openLo || target.lo.Before(search.lo)
	case cmpGe:
		return search.within(target) || target.openHi || target.hi.After(search.hi)
	case cmpLe:
		return search.within(target) || target.openLo || target.lo.Before(search.lo)
	case cmpSa:
		return !target.openLo && !target.lo.Before(search.hi)
	case cmpEb:
		return !target.openHi && !target.hi.After(search.lo)
	case cmpAp:
		return (target.openLo || target.lo.Before(search.hi)) && (target.openHi || search.lo.Before(target.hi))
	}
	return false
}

// dateMatchers builds date search with the eq ne gt lt ge le sa eb ap prefixes.
func dateMatchers(modifier string, values []string) ([]nodeMatcher, error) {
	if modifier != "" {
		return nil, unsupportedModifier(fhir.SearchParamTypeDate, modifier)
	}

	matchers := make([]nodeMatcher, 0, len(values))
	for _, value := range values {
		c, raw := splitPrefix(value)
		search, err := parseSpan(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid date value %q: %w", value, err)
		}
		matchers = append(matchers, func(node *resource.Node) bool {
			target, ok := spanOf(node)
			return ok && search.compare(c, target)
		})
	}
	return matchers, nil
}
