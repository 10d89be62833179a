package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"ragchat/internal/journal"
)

// DailyStats summarises one calendar day of the journal.
type DailyStats struct {
	Date          string              `json:"date"`
	Questions     int                 `json:"questions"`
	FailedAsks    int                 `json:"failed_asks"`
	UniqueUsers   int                 `json:"unique_users"`
	Ingested      map[string]int      `json:"ingested"`
	Deleted       int                 `json:"deleted"`
	Cleared       int                 `json:"cleared"`
	ModelUsage    map[string]int      `json:"model_usage"`
	FailureByText map[string]int      `json:"failure_by_text"`
	UserStats     map[int64]UserStats `json:"user_stats"`
}

type UserStats struct {
	UserID     int64 `json:"user_id"`
	Questions  int   `json:"questions"`
	FailedAsks int   `json:"failed_asks"`
	Ingested   int   `json:"ingested"`
}

// AnalyzeDay computes the statistics of the day containing targetDate, in
// targetDate's location.
func AnalyzeDay(entries []journal.Entry, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:          startOfDay.Format("2006-01-02"),
		Ingested:      make(map[string]int),
		ModelUsage:    make(map[string]int),
		FailureByText: make(map[string]int),
		UserStats:     make(map[int64]UserStats),
	}

	for _, e := range entries {
		if e.Timestamp.Before(startOfDay) || !e.Timestamp.Before(endOfDay) {
			continue
		}
		us, ok := stats.UserStats[e.UserID]
		if !ok {
			us = UserStats{UserID: e.UserID}
		}
		switch e.Action {
		case journal.ActionAsk:
			stats.Questions++
			us.Questions++
			if e.Model != "" {
				stats.ModelUsage[e.Model]++
			}
			if e.Failed() {
				stats.FailedAsks++
				us.FailedAsks++
				stats.FailureByText[e.Error]++
			}
		case journal.ActionIngest:
			if e.Failed() {
				break
			}
			stats.Ingested[e.SourceKind]++
			us.Ingested++
		case journal.ActionDelete:
			if !e.Failed() {
				stats.Deleted++
			}
		case journal.ActionClear:
			if !e.Failed() {
				stats.Cleared++
			}
		}
		stats.UserStats[e.UserID] = us
	}

	stats.UniqueUsers = len(stats.UserStats)
	return stats
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Summary renders the plain-text daily report sent to the admin.
func (ds *DailyStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Report for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Questions: %d (failed: %d)\n", ds.Questions, ds.FailedAsks)
	fmt.Fprintf(&b, "Active users: %d\n", ds.UniqueUsers)
	fmt.Fprintf(&b, "Sources deleted: %d, histories cleared: %d\n", ds.Deleted, ds.Cleared)

	if len(ds.Ingested) > 0 {
		b.WriteString("\nIngested:\n")
		for _, k := range sortedKeys(ds.Ingested) {
			fmt.Fprintf(&b, "- %s: %d\n", k, ds.Ingested[k])
		}
	}
	if len(ds.ModelUsage) > 0 {
		b.WriteString("\nModels:\n")
		for _, k := range sortedKeys(ds.ModelUsage) {
			fmt.Fprintf(&b, "- %s: %d\n", k, ds.ModelUsage[k])
		}
	}
	if len(ds.FailureByText) > 0 {
		b.WriteString("\nFailures:\n")
		for _, k := range sortedKeys(ds.FailureByText) {
			fmt.Fprintf(&b, "- %s: %d\n", k, ds.FailureByText[k])
		}
	}

	if len(ds.UserStats) > 0 {
		ids := make([]int64, 0, len(ds.UserStats))
		for id := range ds.UserStats {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		b.WriteString("\nUsers:\n")
		for _, id := range ids {
			us := ds.UserStats[id]
			fmt.Fprintf(&b, "- %d: %d questions", id, us.Questions)
			if us.FailedAsks > 0 {
				fmt.Fprintf(&b, ", %d failed", us.FailedAsks)
			}
			if us.Ingested > 0 {
				fmt.Fprintf(&b, ", %d uploads", us.Ingested)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
