package github

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

func TestRenderReviewBody_NoFindings(t *testing.T) {
	body := RenderReviewBody(reviewmodel.AnalysisResult{Summary: "All good"}, "")

	assert.Equal(t, "## Automated review\n\nAll good\n\n_No issues found._\n", body)
}

func TestRenderReviewBody_OneBulletPerFinding(t *testing.T) {
	result := reviewmodel.AnalysisResult{
		Summary: "Looks fine",
		Comments: []reviewmodel.Finding{
			{File: "a.ts", Line: 3, Severity: reviewmodel.SeverityWarning, Message: "unused var"},
			{File: "src/b.go", Line: 10, Severity: reviewmodel.SeverityError, Message: "nil deref"},
		},
	}

	body := RenderReviewBody(result, "req-1")

	assert.Contains(t, body, "Looks fine")
	assert.Contains(t, body, "- (warning) a.ts:3 – unused var\n")
	assert.Contains(t, body, "- (error) src/b.go:10 – nil deref\n")
	assert.NotContains(t, body, "_No issues found._")
	assert.Equal(t, 2, strings.Count(body, "\n- ("))
	assert.True(t, strings.HasSuffix(body, "<!-- reviewbridge:request-id=req-1 -->\n"))
}
