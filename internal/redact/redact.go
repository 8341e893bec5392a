// Package redact removes secrets from diff content before it is sent to the
// model backend. Detection uses the gitleaks default rule set.
package redact

import (
	"fmt"
	"sort"
	"strings"

	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Placeholder replaces every detected secret.
const Placeholder = "[REDACTED]"

// Redactor scans text with the gitleaks rules.
type Redactor struct {
	rules gitleaksconfig.Config
}

// New loads the default gitleaks rules. Call once at startup; loading the
// rules goes through process-global state.
func New() (*Redactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading secret detection rules: %w", err)
	}
	return &Redactor{rules: d.Config}, nil
}

// Secrets replaces detected secrets in text and returns the redacted text with
// the rule ids that matched. Detectors accumulate findings, so each call
// gets its own.
func (r *Redactor) Secrets(text string) (string, []string) {
	findings := detect.NewDetector(r.rules).DetectString(text)
	if len(findings) == 0 {
		return text, nil
	}

	secrets := make([]string, 0, len(findings))
	ruleSet := make(map[string]bool)
	for _, f := range findings {
		if strings.TrimSpace(f.Secret) == "" {
			continue
		}
		secrets = append(secrets, f.Secret)
		ruleSet[f.RuleID] = true
	}

	// Longest first so a secret containing another is replaced whole.
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })
	for _, s := range secrets {
		text = strings.ReplaceAll(text, s, Placeholder)
	}

	rules := make([]string, 0, len(ruleSet))
	for id := range ruleSet {
		rules = append(rules, id)
	}
	sort.Strings(rules)
	return text, rules
}
