package prompts

import (
	"fmt"
	"strings"

	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

// SystemInstruction is sent as the system message of every analysis call.
func SystemInstruction() string {
	return strings.Join([]string{
		CodeReviewerRole + ".",
		ReviewGuidelines,
		CommentRequirements,
		JSONStructureExample,
	}, "\n\n")
}

// BuildReviewPrompt renders the user message for one analysis request.
func BuildReviewPrompt(req reviewmodel.AnalysisRequest) string {
	var b strings.Builder

	b.WriteString(RepositoryPrefix + req.Repo + "\n")
	b.WriteString(fmt.Sprintf("%s%d\n", PullRequestPrefix, req.PRNumber))
	if req.Language != "" {
		b.WriteString(LanguagePrefix + req.Language + "\n")
	}

	b.WriteString("\n" + CodeChangesHeader + "\n\n")
	b.WriteString("```diff\n")
	b.WriteString(req.Diff)
	if !strings.HasSuffix(req.Diff, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")

	return b.String()
}
