package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/livereview/reviewbridge/internal/reviewmodel"
)

// FallbackSummary replaces a missing or blank summary.
const FallbackSummary = "No summary provided."

// Outcome is the result of sanitizing a model reply: either Ok or Malformed.
type Outcome interface {
	outcome()
}

// Ok carries a fully validated result.
type Ok struct {
	Result reviewmodel.AnalysisResult
	// Dropped counts findings removed for having the wrong shape.
	Dropped int
}

// Malformed means the reply could not be used at all.
type Malformed struct {
	Reason string
}

func (Ok) outcome()        {}
func (Malformed) outcome() {}

// Sanitizer converts untrusted model output into an AnalysisResult.
type Sanitizer struct {
	// RepairJSON runs jsonrepair over replies that fail to parse.
	RepairJSON bool
}

// Sanitize parses raw. Malformed JSON or a non-object value yields Malformed;
// everything else yields Ok with invalid findings dropped in order.
func (s Sanitizer) Sanitize(logger *zerolog.Logger, raw string) Outcome {
	text := extractJSON(raw)

	if s.RepairJSON {
		repaired, stats, err := RepairJSON(text)
		if err == nil && stats.WasRepaired {
			logger.Warn().
				Int("original_bytes", stats.OriginalBytes).
				Int("repaired_bytes", stats.RepairedBytes).
				Dur("repair_time", stats.RepairTime).
				Msg("Model reply repaired before parsing")
			text = repaired
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return Malformed{Reason: fmt.Sprintf("model reply is not valid JSON: %v", err)}
	}
	if dec.More() {
		return Malformed{Reason: "model reply contains trailing data after the JSON value"}
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return Malformed{Reason: fmt.Sprintf("model reply is a JSON %s, expected an object", jsonKind(parsed))}
	}

	result := reviewmodel.AnalysisResult{
		Summary:  summaryOf(obj["summary"]),
		Comments: []reviewmodel.Finding{},
	}

	entries, _ := obj["comments"].([]interface{})
	dropped := 0
	for _, entry := range entries {
		finding, ok := findingOf(entry)
		if !ok {
			dropped++
			continue
		}
		result.Comments = append(result.Comments, finding)
	}

	return Ok{Result: result, Dropped: dropped}
}

func summaryOf(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return FallbackSummary
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return FallbackSummary
	}
	return s
}

func findingOf(v interface{}) (reviewmodel.Finding, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return reviewmodel.Finding{}, false
	}

	file, ok := obj["file"].(string)
	if !ok {
		return reviewmodel.Finding{}, false
	}
	num, ok := obj["line"].(json.Number)
	if !ok {
		return reviewmodel.Finding{}, false
	}
	line, err := num.Int64()
	if err != nil {
		return reviewmodel.Finding{}, false
	}
	sevText, ok := obj["severity"].(string)
	if !ok {
		return reviewmodel.Finding{}, false
	}
	severity, ok := reviewmodel.ParseSeverity(sevText)
	if !ok {
		return reviewmodel.Finding{}, false
	}
	message, ok := obj["message"].(string)
	if !ok {
		return reviewmodel.Finding{}, false
	}

	return reviewmodel.Finding{
		File:     file,
		Line:     int(line),
		Severity: severity,
		Message:  message,
	}, true
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	}
	return "value"
}
