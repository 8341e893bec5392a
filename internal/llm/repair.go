package llm

import (
	"encoding/json"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats describes one repair attempt.
type RepairStats struct {
	OriginalBytes int           `json:"original_bytes"`
	RepairedBytes int           `json:"repaired_bytes"`
	RepairTime    time.Duration `json:"repair_time"`
	WasRepaired   bool          `json:"was_repaired"`
}

// RepairJSON returns raw unchanged when it already parses, otherwise the
// jsonrepair rendition of it.
func RepairJSON(raw string) (string, RepairStats, error) {
	start := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}

	if json.Valid([]byte(raw)) {
		stats.RepairedBytes = len(raw)
		stats.RepairTime = time.Since(start)
		return raw, stats, nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	stats.RepairTime = time.Since(start)
	if err != nil {
		return raw, stats, err
	}

	stats.WasRepaired = true
	stats.RepairedBytes = len(repaired)
	return repaired, stats, nil
}
