package diff

import (
	"fmt"
	"path"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// Stats summarizes a unified diff.
type Stats struct {
	Files     int
	Additions int
	Deletions int
	Binary    int
	// Names holds the post-change path of every file, or the old path for deletions.
	Names []string
}

// Summarize parses a unified diff and counts files and changed lines.
func Summarize(raw string) (Stats, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return Stats{}, fmt.Errorf("parsing diff: %w", err)
	}

	var stats Stats
	for _, f := range parsed {
		stats.Files++
		if f.IsBinary {
			stats.Binary++
		}

		name := f.NewName
		if f.IsDelete || name == "" {
			name = f.OldName
		}
		stats.Names = append(stats.Names, name)

		for _, frag := range f.TextFragments {
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					stats.Additions++
				case gitdiff.OpDelete:
					stats.Deletions++
				}
			}
		}
	}
	return stats, nil
}

var extensionLanguages = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".py":    "python",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
}

// InferLanguage returns the language of the most common recognized file
// extension among names. Ties go to the language seen first. Empty when no
// extension is recognized.
func InferLanguage(names []string) string {
	counts := make(map[string]int)
	var order []string

	for _, name := range names {
		lang, ok := extensionLanguages[strings.ToLower(path.Ext(name))]
		if !ok {
			continue
		}
		if counts[lang] == 0 {
			order = append(order, lang)
		}
		counts[lang]++
	}

	best := ""
	for _, lang := range order {
		if counts[lang] > counts[best] {
			best = lang
		}
	}
	return best
}
