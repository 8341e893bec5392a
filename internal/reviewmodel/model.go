package reviewmodel

import (
	"fmt"
	"strings"
)

// Severity is the importance of a single finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ParseSeverity matches s exactly against the recognized severities.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityError:
		return Severity(s), true
	}
	return "", false
}

// AnalysisRequest is the body of POST /api/v1/analyze.
type AnalysisRequest struct {
	Repo     string `json:"repo"`
	PRNumber int    `json:"prNumber"`
	Diff     string `json:"diff"`
	Language string `json:"language,omitempty"`
}

// Finding is one review comment produced by the model.
type Finding struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// AnalysisResult is the sanitized analysis of one diff. Comments is never nil
// once produced by the sanitizer.
type AnalysisResult struct {
	Summary  string    `json:"summary"`
	Comments []Finding `json:"comments"`
}

// FieldViolation describes one invalid field of a request.
type FieldViolation struct {
	Field   string
	Message string
}

// Validate checks r against structural rules. Diff size is measured in bytes
// and maxDiffSize itself is accepted.
func (r AnalysisRequest) Validate(maxDiffSize int) []FieldViolation {
	var violations []FieldViolation

	if strings.TrimSpace(r.Repo) == "" {
		violations = append(violations, FieldViolation{Field: "repo", Message: "repo is required"})
	}
	if r.PRNumber <= 0 {
		violations = append(violations, FieldViolation{Field: "prNumber", Message: "prNumber must be a positive integer"})
	}
	switch {
	case strings.TrimSpace(r.Diff) == "":
		violations = append(violations, FieldViolation{Field: "diff", Message: "diff is required"})
	case len(r.Diff) > maxDiffSize:
		violations = append(violations, FieldViolation{
			Field:   "diff",
			Message: fmt.Sprintf("diff exceeds maximum size of %d bytes", maxDiffSize),
		})
	}

	return violations
}
