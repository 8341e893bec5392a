package prompts

// System role definitions
const (
	// CodeReviewerRole defines the model's role for every analysis call
	CodeReviewerRole = "You are an expert code reviewer"
)

// Core instruction templates
const (
	// ReviewGuidelines provides quality guidelines for reviews
	ReviewGuidelines = `IMPORTANT REVIEW GUIDELINES:
- Focus on finding bugs, security issues, and improvement opportunities
- Highlight unclear code and readability issues
- Keep comments concise and use active voice
- Avoid unnecessary praise or filler comments
- Avoid commenting on simplistic or obvious things (imports, blank space changes, etc.)`

	// CommentRequirements specifies what each comment should include
	CommentRequirements = `For each comment, include:
- File path as it appears in the diff
- Line number in the new version of the file
- Severity: exactly one of info, warning, error
- A short message describing the issue`

	// JSONStructureExample provides the expected JSON output format
	JSONStructureExample = `Respond with a single JSON object and nothing else, using this structure:
{
  "summary": "One paragraph describing the overall quality of the change",
  "comments": [
    {
      "file": "path/to/file.ext",
      "line": 42,
      "severity": "info|warning|error",
      "message": "Description of the issue"
    }
  ]
}
Use an empty "comments" array when there is nothing to report.`
)

// Section headers
const (
	RepositoryPrefix  = "Repository: "
	PullRequestPrefix = "Pull request: #"
	LanguagePrefix    = "Primary language: "
	CodeChangesHeader = "# Code Changes"
)
