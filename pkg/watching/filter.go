package watching

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// Verdict is the result of evaluating a filter against a candidate path.
type Verdict uint8

const (
	// Accept indicates that events for the path should be emitted.
	Accept Verdict = iota
	// Reject indicates that events for the path should not be emitted.
	// Children of a rejected directory remain eligible for watching.
	Reject
	// SkipSubtree indicates that events for the path should not be emitted
	// and that, where recursion is emulated, neither the directory nor any
	// of its descendants should be watched.
	SkipSubtree
)

// String implements fmt.Stringer.String.
func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case SkipSubtree:
		return "skip-subtree"
	default:
		return "unknown"
	}
}

// Filter is a predicate evaluated against absolute paths after
// classification and before debouncing. A nil Filter accepts all paths.
type Filter func(path string) Verdict

// PatternFilter converts a doublestar pattern into a Filter that accepts
// paths matching the pattern, either in full (with separators normalized to
// forward slashes) or by base name.
func PatternFilter(pattern string) (Filter, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Errorf("invalid pattern: %q", pattern)
	}
	return func(path string) Verdict {
		if matched, _ := doublestar.Match(pattern, filepath.ToSlash(path)); matched {
			return Accept
		}
		if matched, _ := doublestar.Match(pattern, filepath.Base(path)); matched {
			return Accept
		}
		return Reject
	}, nil
}

// evaluateFilter evaluates a filter against a path, converting a filter
// panic into an error so that a misbehaving predicate can't tear down the
// watcher. A path that panics the filter is treated as rejected.
func evaluateFilter(filter Filter, path string) (verdict Verdict, err error) {
	if filter == nil {
		return Accept, nil
	}
	defer func() {
		if r := recover(); r != nil {
			verdict = Reject
			err = errors.Errorf("filter panic: %v", r)
		}
	}()
	return filter(path), nil
}
