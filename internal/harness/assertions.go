package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// AssertionError is returned when an expectation fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Record   int
	What     string       // which property failed
	Expected string       // human-readable expected outcome
	Actual   string       // human-readable actual outcome
	Trace    []TraceEvent // full trace for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Expectation failed: record %d %s\n", e.Record, e.What)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatEvent(event))
	}

	return buf.String()
}

// checkExpectation compares one record's outcome and final state against exp.
// Returns the first mismatch.
func checkExpectation(result *Result, exp Expectation) error {
	got := result.Outcomes[exp.Record]
	fail := func(what, expected, actual string) error {
		return &AssertionError{
			Record:   exp.Record,
			What:     what,
			Expected: expected,
			Actual:   actual,
			Trace:    result.Trace,
		}
	}

	if got.Changed != exp.Changed {
		return fail("changed", fmt.Sprint(exp.Changed), fmt.Sprint(got.Changed))
	}
	if got.Replaced != exp.Replaced {
		return fail("replaced", fmt.Sprint(exp.Replaced), fmt.Sprint(got.Replaced))
	}
	if got.Failed != exp.Failed {
		return fail("failed", fmt.Sprint(exp.Failed), fmt.Sprint(got.Failed))
	}

	if exp.Reviewed != nil {
		reviewed := reviewedPaths(result.Trace, exp.Record)
		if !slices.Equal(reviewed, exp.Reviewed) {
			return fail("reviewed paths", fmt.Sprint(exp.Reviewed), fmt.Sprint(reviewed))
		}
	}

	// Sorted for a stable first failure.
	paths := make([]string, 0, len(exp.Fields))
	for p := range exp.Fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	final := result.Final[exp.Record]
	for _, p := range paths {
		want := exp.Fields[p]
		v, err := final.LookupErr(strings.Split(p, ".")...)
		if err != nil {
			return fail("field "+p, fmt.Sprintf("%q", want), "missing: "+err.Error())
		}
		s, ok := v.StringValueOK()
		if !ok {
			return fail("field "+p, fmt.Sprintf("%q", want), "not a string: "+v.Type.String())
		}
		if s != want {
			return fail("field "+p, fmt.Sprintf("%q", want), fmt.Sprintf("%q", s))
		}
	}

	return nil
}

func reviewedPaths(trace []TraceEvent, record int) []string {
	paths := []string{}
	for _, e := range trace {
		if e.Type == EventReview && e.Record == record {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// formatEvent renders one trace line.
func formatEvent(e TraceEvent) string {
	switch e.Type {
	case EventReview:
		verdict := "declined"
		if e.Accepted {
			verdict = "accepted"
		}
		return fmt.Sprintf("record %d review %s %q %s", e.Record, e.Path, e.Value, verdict)
	case EventReplace:
		return fmt.Sprintf("record %d replace", e.Record)
	case EventFailure:
		return fmt.Sprintf("record %d failure %s", e.Record, e.Detail)
	}
	return fmt.Sprintf("record %d %s", e.Record, e.Type)
}
