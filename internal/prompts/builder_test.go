package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

func TestSystemInstruction_DescribesResponseShape(t *testing.T) {
	s := SystemInstruction()
	for _, want := range []string{`"summary"`, `"comments"`, `"file"`, `"line"`, `"severity"`, `"message"`, "info|warning|error"} {
		assert.Contains(t, s, want)
	}
}

func TestBuildReviewPrompt(t *testing.T) {
	p := BuildReviewPrompt(reviewmodel.AnalysisRequest{
		Repo:     "acme/widgets",
		PRNumber: 42,
		Diff:     "+const unused = 1;",
		Language: "typescript",
	})

	assert.Contains(t, p, "Repository: acme/widgets\n")
	assert.Contains(t, p, "Pull request: #42\n")
	assert.Contains(t, p, "Primary language: typescript\n")
	assert.True(t, strings.HasSuffix(p, "```diff\n+const unused = 1;\n```\n"))
}

func TestBuildReviewPrompt_OmitsEmptyLanguage(t *testing.T) {
	p := BuildReviewPrompt(reviewmodel.AnalysisRequest{Repo: "a/b", PRNumber: 1, Diff: "x\n"})

	assert.NotContains(t, p, LanguagePrefix)
	assert.Contains(t, p, "```diff\nx\n```\n")
}
