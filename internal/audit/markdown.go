package audit

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as a Markdown document.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Ledger Audit Report\n\n")
	sb.WriteString(fmt.Sprintf("- Asset: %s\n", r.Asset))
	sb.WriteString(fmt.Sprintf("- Generated: %s\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("- Initialized: %t\n", r.Initialized))
	sb.WriteString(fmt.Sprintf("- Positions: %d\n", r.Positions))
	sb.WriteString(fmt.Sprintf("- Journal events: %d\n\n", r.Events))

	sb.WriteString("## Checks\n\n")
	sb.WriteString("| # | Check | Expected | Actual | Result |\n")
	sb.WriteString("|---|-------|----------|--------|--------|\n")
	passed := 0
	for i, c := range r.Checks {
		result := "PASS"
		if c.Pass {
			passed++
		} else {
			result = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			i+1, c.Name, c.Expected, c.Actual, result))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Checks: %d/%d passed\n\n", passed, len(r.Checks)))

	sb.WriteString("## Summary\n\n")
	if r.Passed() {
		sb.WriteString("Ledger state is consistent.\n")
		return sb.String()
	}
	sb.WriteString("Ledger state violates:\n")
	for _, c := range r.Failures() {
		sb.WriteString(fmt.Sprintf("- %s (expected %s, actual %s)\n", c.Name, c.Expected, c.Actual))
	}
	return sb.String()
}
