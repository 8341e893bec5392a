package github

import (
	"fmt"
	"strings"

	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

const (
	reviewHeading       = "## Automated review"
	noIssuesPlaceholder = "_No issues found._"
	requestIDMarker     = "<!-- reviewbridge:request-id=%s -->"
)

// FormatFinding renders one finding as a markdown bullet.
func FormatFinding(f reviewmodel.Finding) string {
	return fmt.Sprintf("- (%s) %s:%d – %s", f.Severity, f.File, f.Line, f.Message)
}

// RenderReviewBody builds the markdown body of the published review. A
// non-empty requestID is appended as a hidden marker.
func RenderReviewBody(result reviewmodel.AnalysisResult, requestID string) string {
	var b strings.Builder

	b.WriteString(reviewHeading + "\n\n")
	b.WriteString(result.Summary + "\n\n")

	if len(result.Comments) == 0 {
		b.WriteString(noIssuesPlaceholder + "\n")
	} else {
		for _, f := range result.Comments {
			b.WriteString(FormatFinding(f) + "\n")
		}
	}

	if requestID != "" {
		b.WriteString("\n" + fmt.Sprintf(requestIDMarker, requestID) + "\n")
	}
	return b.String()
}
