package llm

import "strings"

// extractJSON strips a surrounding markdown code fence from a model reply.
// Text outside the fence is discarded; text without a fence is returned
// trimmed. No attempt is made to locate JSON inside free prose.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "```") {
		return raw
	}

	lines := strings.Split(raw, "\n")
	var jsonLines []string
	inCodeBlock := false
	seenBlock := false

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inCodeBlock {
				break
			}
			inCodeBlock = true
			seenBlock = true
			continue
		}
		if inCodeBlock {
			jsonLines = append(jsonLines, line)
		}
	}

	if !seenBlock {
		return raw
	}
	return strings.TrimSpace(strings.Join(jsonLines, "\n"))
}
