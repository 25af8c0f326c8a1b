package watching

import (
	"strings"
	"testing"
)

// TestPatternFilter tests pattern-based filter construction and matching.
func TestPatternFilter(t *testing.T) {
	filter, err := PatternFilter("**/*.txt")
	if err != nil {
		t.Fatal("unable to create filter:", err)
	}
	if verdict := filter("/watch/notes/todo.txt"); verdict != Accept {
		t.Error("expected acceptance, got:", verdict)
	}
	if verdict := filter("/watch/notes/todo.log"); verdict != Reject {
		t.Error("expected rejection, got:", verdict)
	}
}

// TestPatternFilterBaseName verifies that patterns without separators match
// against base names.
func TestPatternFilterBaseName(t *testing.T) {
	filter, err := PatternFilter("*.txt")
	if err != nil {
		t.Fatal("unable to create filter:", err)
	}
	if verdict := filter("/watch/deeply/nested/file.txt"); verdict != Accept {
		t.Error("expected acceptance, got:", verdict)
	}
}

// TestPatternFilterInvalid verifies that invalid patterns are rejected at
// construction.
func TestPatternFilterInvalid(t *testing.T) {
	if _, err := PatternFilter("[invalid"); err == nil {
		t.Error("invalid pattern unexpectedly accepted")
	}
}

// TestEvaluateFilterNil verifies that a nil filter accepts everything.
func TestEvaluateFilterNil(t *testing.T) {
	verdict, err := evaluateFilter(nil, "/anything")
	if err != nil {
		t.Fatal("unexpected error:", err)
	} else if verdict != Accept {
		t.Error("nil filter didn't accept:", verdict)
	}
}

// TestEvaluateFilterPanic verifies that a panicking filter is converted into
// an error and a rejection.
func TestEvaluateFilterPanic(t *testing.T) {
	filter := func(path string) Verdict {
		panic("boom")
	}
	verdict, err := evaluateFilter(filter, "/anything")
	if err == nil {
		t.Fatal("filter panic didn't surface as error")
	} else if !strings.Contains(err.Error(), "boom") {
		t.Error("panic value missing from error:", err)
	} else if verdict != Reject {
		t.Error("panicking filter didn't reject:", verdict)
	}
}

// TestVerdictString tests verdict formatting.
func TestVerdictString(t *testing.T) {
	if Accept.String() != "accept" || Reject.String() != "reject" || SkipSubtree.String() != "skip-subtree" {
		t.Error("unexpected verdict formatting")
	}
}
