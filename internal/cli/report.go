package cli

import (
	"fmt"
	"strings"

	"github.com/tallyhq/tally/internal/integrity"
)

// RenderIssues formats an integrity report for text output.
// Deterministic for a given issue list; golden-tested.
func RenderIssues(issues []integrity.Issue) string {
	if len(issues) == 0 {
		return "integrity: ok (0 issues)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "integrity: %d issue(s) found\n", len(issues))
	for _, issue := range issues {
		fmt.Fprintf(&b, "  [%-8s] %-13s %s\n", issue.Severity, issue.Type, issue.Description)
		fmt.Fprintf(&b, "             recommendation: %s\n", issue.Recommendation)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderResult formats a repair outcome for text output.
func RenderResult(result integrity.Result, dryRun bool) string {
	var b strings.Builder

	mode := "repair"
	if dryRun {
		mode = "repair (dry run)"
	}

	status := "FAILED"
	if result.Success {
		status = "ok"
	}

	fmt.Fprintf(&b, "%s: %s\n", mode, status)
	fmt.Fprintf(&b, "  issues found: %d\n", result.IssuesFound)
	fmt.Fprintf(&b, "  issues fixed: %d\n", result.IssuesFixed)
	if result.BackupCreated {
		fmt.Fprintf(&b, "  backup: %s\n", result.BackupName)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(&b, "  error: %s\n", e)
	}
	return strings.TrimRight(b.String(), "\n")
}
