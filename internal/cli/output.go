package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mesh-intelligence/lawcascade/internal/cascade"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinLaws(ids []types.LawID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, ",")
}

func printReport(w io.Writer, r *types.DiscoveryReport) {
	fmt.Fprintf(w, "Session %s: %d inserted, %d merged (stopped: %s)\n",
		r.SessionID, r.Inserted(), r.Merged(), r.StoppedBy)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tFRONTIER\tINSERTED\tMERGED\tUNCHANGED\tDEFERRED\tSKIPPED")
	for _, l := range r.Layers {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			l.Layer, len(l.Frontier), l.Inserted, l.Merged, l.Unchanged, l.Deferred, l.Skipped)
	}
	tw.Flush()
	for _, m := range r.Missing {
		if m.ReferencedBy != "" {
			fmt.Fprintf(w, "missing: %s (referenced by %s)\n", m.Law, m.ReferencedBy)
		} else {
			fmt.Fprintf(w, "missing: %s\n", m.Law)
		}
	}
}

func printEntries(w io.Writer, entries []*types.AffectedLaw) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSESSION\tLAW\tTYPE\tSTATUS\tLAYER\tSOURCES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID, e.SessionID, e.AffectedLaw, e.UpdateType, e.Status, e.Layer, joinLaws(e.SourceLaws))
	}
	tw.Flush()
}

func printListing(w io.Writer, l *cascade.Listing) {
	entries := append(append([]*types.AffectedLaw{}, l.Reparse...), l.EnactingLink...)
	printEntries(w, entries)
	fmt.Fprintf(w, "\n%d entries, %d pending", l.Summary.Total, l.Summary.TotalPending)
	for _, s := range types.Statuses {
		if n := l.Summary.ByStatus[s]; n > 0 && s != types.StatusPending {
			fmt.Fprintf(w, ", %d %s", n, s)
		}
	}
	fmt.Fprintln(w)
}

func printBatch(w io.Writer, b *types.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLAW\tSTATUS\tMESSAGE")
	for _, r := range b.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.AffectedLaw, r.Status, r.Message)
	}
	tw.Flush()
	fmt.Fprintf(w, "%s: %d total, %d success, %d unchanged, %d exists, %d skipped, %d errors\n",
		b.Operator, b.Total, b.Success, b.Unchanged, b.Exists, b.Skipped, b.Errors)
	if b.Continuation != nil {
		fmt.Fprintf(w, "continuation: %d inserted, %d merged\n", b.Continuation.Inserted(), b.Continuation.Merged())
	}
	if b.ContinuationError != "" {
		fmt.Fprintf(w, "continuation failed: %s\n", b.ContinuationError)
	}
}

func printSessions(w io.Writer, sessions []types.SessionSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTOTAL\tPENDING\tDEFERRED\tPROCESSED\tSKIPPED\tMAX LAYER")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			s.SessionID, s.Total, s.Pending, s.Deferred, s.Processed, s.Skipped, s.MaxLayer)
	}
	tw.Flush()
}
