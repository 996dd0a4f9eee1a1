package orchestrator

import (
	"fmt"
	"strings"

	"github.com/shaiso/Procura/internal/domain"
	"github.com/shaiso/Procura/internal/hitl"
)

// Summary — текстовая сводка состояния на конец хода.
func Summary(s *domain.SessionState) string {
	if len(s.InputRecords) == 0 {
		return "No records submitted."
	}

	verdicts := make(map[domain.Verdict]int)
	for _, qa := range s.QAResults {
		verdicts[qa.Verdict]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d record(s): %d classified, %d evaluated (%d approved, %d flagged, %d rejected).",
		len(s.InputRecords),
		len(s.Classifications),
		len(s.QAResults),
		verdicts[domain.VerdictApproved],
		verdicts[domain.VerdictFlagged],
		verdicts[domain.VerdictRejected],
	)

	if pending := hitl.PendingCount(s); pending > 0 {
		fmt.Fprintf(&b, " %d item(s) awaiting human review.", pending)
	}
	if decided := len(s.HITLDecisions); decided > 0 {
		fmt.Fprintf(&b, " %d review decision(s) applied.", decided)
	}
	if n := len(s.Enrichments); n > 0 {
		fmt.Fprintf(&b, " %d record(s) enriched.", n)
	}
	if n := len(s.Errors); n > 0 {
		fmt.Fprintf(&b, " %d error(s) recorded.", n)
	}

	if a := s.Analysis; a != nil {
		fmt.Fprintf(&b, " Total classified spend: %.2f.", a.TotalSpend)
		if a.Narrative != "" {
			b.WriteString("\n\n")
			b.WriteString(a.Narrative)
		}
	}

	if f := s.Fatal; f != nil {
		fmt.Fprintf(&b, "\n\nStopped at %s: %s", f.Stage, f.Message)
		if f.Remediation != "" {
			fmt.Fprintf(&b, " (%s)", f.Remediation)
		}
	}
	return b.String()
}
