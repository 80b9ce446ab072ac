// Package integrity detects and repairs violations of the wallet
// display-ordering invariant: over a healthy collection the order keys
// form exactly the contiguous range [0, count-1], each value once, none
// null or negative.
package integrity

import "fmt"

// IssueType categorizes ordering-invariant violations.
type IssueType string

const (
	// IssueNullKey indicates wallets with no order key at all.
	IssueNullKey IssueType = "null_key"

	// IssueNegativeKey indicates wallets with an order key below zero.
	IssueNegativeKey IssueType = "negative_key"

	// IssueDuplicateKey indicates an order-key value shared by two or
	// more wallets.
	IssueDuplicateKey IssueType = "duplicate_key"

	// IssueSequenceGap indicates expected values missing from [0, N-1].
	IssueSequenceGap IssueType = "sequence_gap"
)

// Severity ranks how urgently an issue needs repair.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Issue is one detected invariant violation. Issues are ordinary scanner
// output, never errors - the scanner throws only on store-access failure.
//
// AffectedIDs holds wallet ids for null/negative/duplicate issues. For
// sequence gaps it holds the missing order-key values instead, since no
// single wallet owns a hole in the sequence.
type Issue struct {
	Type           IssueType `json:"issue_type"`
	Severity       Severity  `json:"severity"`
	Description    string    `json:"description"`
	AffectedIDs    []int64   `json:"affected_ids"`
	Recommendation string    `json:"recommendation"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Type, i.Description)
}
