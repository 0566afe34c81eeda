package traffic

import (
	"sort"
	"strconv"
	"time"
)

// DefaultTopN bounds each breakdown in a Summary.
const DefaultTopN = 15

// Count is one bucket of a breakdown.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary is a windowed aggregate of traffic records.
type Summary struct {
	WindowMinutes int     `json:"window_minutes"`
	Total         int     `json:"total"`
	ByStatus      []Count `json:"by_status"`
	TopPaths      []Count `json:"top_paths"`
	TopIPs        []Count `json:"top_ips"`
}

// Summarize keeps records with Timestamp >= now-window and runs three independent
// group-count-sort-truncate passes over them.
func Summarize(records []Record, window time.Duration, now time.Time, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}
	cutoff := now.Add(-window)

	status := map[string]int{}
	paths := map[string]int{}
	ips := map[string]int{}
	total := 0
	for _, rec := range records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		total++
		status[strconv.Itoa(rec.StatusCode)]++
		paths[rec.Path]++
		ips[rec.IP]++
	}

	return Summary{
		WindowMinutes: int(window / time.Minute),
		Total:         total,
		ByStatus:      topCounts(status, topN),
		TopPaths:      topCounts(paths, topN),
		TopIPs:        topCounts(ips, topN),
	}
}

func topCounts(m map[string]int, n int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
