package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/physync/internal/trace"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Events   []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nDelivered events:\n")
		for _, ev := range e.Events {
			fmt.Fprintf(&buf, "  %s\n", ev)
		}
	}

	return buf.String()
}

// FormatEvent renders an event as "kind sender -> receiver".
func FormatEvent(e trace.Event) string {
	return fmt.Sprintf("%s %s -> %s", e.Kind, e.Sender, e.Receiver)
}

// timeline lists every delivered event prefixed by its tick.
func timeline(ticks []trace.Tick) []string {
	var out []string
	for _, t := range ticks {
		for _, e := range t.Events {
			out = append(out, fmt.Sprintf("[%d] %s", t.Seq, FormatEvent(e)))
		}
	}
	return out
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		return assertEventCount(result.Ticks, a)
	case AssertEventOrder:
		return assertEventOrder(result.Ticks, a)
	case AssertCommandCount:
		return assertCommandCount(result.Ticks, a)
	case AssertPosition:
		return assertPosition(result, a)
	case AssertActorCount:
		return assertActorCount(result.Ticks, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertEventCount counts delivered events of a kind. Empty sender or
// receiver match any node.
func assertEventCount(ticks []trace.Tick, a Assertion) error {
	count := 0
	for _, t := range ticks {
		for _, e := range t.Events {
			if e.Kind != a.Kind {
				continue
			}
			if a.Sender != "" && e.Sender != a.Sender {
				continue
			}
			if a.Receiver != "" && e.Receiver != a.Receiver {
				continue
			}
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventCount,
		Expected: fmt.Sprintf("%d %s event(s) sender=%q receiver=%q", a.Count, a.Kind, a.Sender, a.Receiver),
		Actual:   fmt.Sprintf("%d", count),
		Events:   timeline(ticks),
	}
}

// assertEventOrder checks that the events appear in the given order.
// Other events may come in between.
func assertEventOrder(ticks []trace.Tick, a Assertion) error {
	next := 0
	for _, t := range ticks {
		for _, e := range t.Events {
			if next < len(a.Events) && FormatEvent(e) == a.Events[next] {
				next++
			}
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventOrder,
		Expected: strings.Join(a.Events, ", "),
		Actual:   fmt.Sprintf("stopped matching at %q", a.Events[next]),
		Events:   timeline(ticks),
	}
}

func assertCommandCount(ticks []trace.Tick, a Assertion) error {
	count := 0
	for _, t := range ticks {
		for _, c := range t.Commands {
			if c.Name == a.Command && (a.Node == "" || c.Node == a.Node) {
				count++
			}
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCommandCount,
		Expected: fmt.Sprintf("%d %s command(s) node=%q", a.Count, a.Command, a.Node),
		Actual:   fmt.Sprintf("%d", count),
	}
}

func assertPosition(result *Result, a Assertion) error {
	pos, ok := result.Final[a.Node]
	if !ok {
		return &AssertionError{Type: AssertPosition, Expected: fmt.Sprintf("node %q", a.Node), Actual: "not in scene"}
	}
	v := pos[strings.Index("xyz", a.Axis)]

	if a.Above != nil && v <= *a.Above {
		return &AssertionError{
			Type:     AssertPosition,
			Expected: fmt.Sprintf("%s.%s > %g", a.Node, a.Axis, *a.Above),
			Actual:   fmt.Sprintf("%g", v),
		}
	}
	if a.Below != nil && v >= *a.Below {
		return &AssertionError{
			Type:     AssertPosition,
			Expected: fmt.Sprintf("%s.%s < %g", a.Node, a.Axis, *a.Below),
			Actual:   fmt.Sprintf("%g", v),
		}
	}
	return nil
}

// assertActorCount checks the live actor count after a tick; tick 0 means
// the last recorded tick.
func assertActorCount(ticks []trace.Tick, a Assertion) error {
	if len(ticks) == 0 {
		return &AssertionError{Type: AssertActorCount, Expected: fmt.Sprintf("%d actor(s)", a.Count), Actual: "no ticks recorded"}
	}
	t := ticks[len(ticks)-1]
	if a.Tick > 0 {
		found := false
		for _, candidate := range ticks {
			if candidate.Seq == a.Tick {
				t, found = candidate, true
				break
			}
		}
		if !found {
			return &AssertionError{Type: AssertActorCount, Expected: fmt.Sprintf("tick %d", a.Tick), Actual: "not recorded"}
		}
	}
	if t.Actors == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertActorCount,
		Expected: fmt.Sprintf("%d actor(s) after tick %d", a.Count, t.Seq),
		Actual:   fmt.Sprintf("%d", t.Actors),
	}
}
