package transfer

import (
	"fmt"
	"strings"
)

const unmatchedTip = "Tip: These tracks may not be available in the destination catalog, or the metadata may differ enough to prevent a match."

// Report accumulates category outcomes and renders a run summary.
//
// Rendering is deterministic: the same outcomes in the same order always
// produce the same text, with unmatched tracks listed in enumeration order.
type Report struct {
	Source      string
	Destination string
	DryRun      bool
	Partial     bool
	Outcomes    []Outcome
}

// NewReport creates an empty report for a source/destination pair.
func NewReport(source, destination string, dryRun bool) *Report {
	return &Report{Source: source, Destination: destination, DryRun: dryRun}
}

// Add appends a category outcome.
func (r *Report) Add(outcome Outcome) {
	r.Outcomes = append(r.Outcomes, outcome)
}

// MarkPartial flags the report as covering a cancelled run.
func (r *Report) MarkPartial() {
	r.Partial = true
}

// HasUnmatched reports whether any category recorded unmatched tracks.
func (r *Report) HasUnmatched() bool {
	for _, outcome := range r.Outcomes {
		if len(outcome.Unmatched) > 0 {
			return true
		}
	}
	return false
}

// Render produces the plain-text summary.
func (r *Report) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Transfer report: %s -> %s\n", r.Source, r.Destination)
	if r.DryRun {
		b.WriteString("(dry run: no changes were written)\n")
	}
	if r.Partial {
		b.WriteString("(partial: the transfer was cancelled before finishing)\n")
	}
	b.WriteString("\n")

	var attempted, succeeded, skipped, unmatched int
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			fmt.Fprintf(&b, "%s: failed (%v)\n", outcome.Category, outcome.Err)
			continue
		}

		attempted += outcome.Attempted
		succeeded += outcome.Succeeded
		skipped += outcome.Skipped
		unmatched += len(outcome.Unmatched)

		fmt.Fprintf(&b, "%s: %d/%d transferred, %d already present, %d unmatched\n",
			outcome.Category, outcome.Succeeded, outcome.Attempted, outcome.Skipped, len(outcome.Unmatched))

		for _, miss := range outcome.Unmatched {
			fmt.Fprintf(&b, "  - %s (%s)\n", miss.Track, miss.Reason)
		}
	}

	fmt.Fprintf(&b, "\nTotals: %d transferred, %d already present, %d unmatched\n",
		succeeded, skipped, unmatched)

	if unmatched > 0 {
		b.WriteString("\n" + unmatchedTip + "\n")
	}

	return b.String()
}
