package analytics

import (
	"strings"
	"testing"
	"time"

	"ragchat/internal/journal"
)

func TestAnalyzeDay(t *testing.T) {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	entries := []journal.Entry{
		{Timestamp: day.Add(2 * time.Hour), UserID: 123, Action: journal.ActionAsk, Model: "google/gemini-2.5-flash", Answer: "a"},
		{Timestamp: day.Add(3 * time.Hour), UserID: 123, Action: journal.ActionAsk, Model: "google/gemini-2.5-flash", Error: "rate limited"},
		{Timestamp: day.Add(4 * time.Hour), UserID: 456, Action: journal.ActionAsk, Model: "openai/gpt-4o-mini", Answer: "b"},
		{Timestamp: day.Add(5 * time.Hour), UserID: 456, Action: journal.ActionIngest, SourceKind: "pdf"},
		{Timestamp: day.Add(5 * time.Hour), UserID: 456, Action: journal.ActionIngest, SourceKind: "csv", Error: "bad csv"},
		{Timestamp: day.Add(6 * time.Hour), UserID: 789, Action: journal.ActionDelete},
		{Timestamp: day.Add(7 * time.Hour), UserID: 789, Action: journal.ActionClear},
		// outside the day
		{Timestamp: day.AddDate(0, 0, 1), UserID: 999, Action: journal.ActionAsk},
		{Timestamp: day.Add(-time.Second), UserID: 999, Action: journal.ActionAsk},
	}

	stats := AnalyzeDay(entries, day.Add(13*time.Hour))

	if stats.Date != "2024-01-15" {
		t.Errorf("date = %q", stats.Date)
	}
	if stats.Questions != 3 || stats.FailedAsks != 1 {
		t.Errorf("questions = %d failed = %d, want 3 and 1", stats.Questions, stats.FailedAsks)
	}
	if stats.UniqueUsers != 3 {
		t.Errorf("unique users = %d, want 3", stats.UniqueUsers)
	}
	if stats.Ingested["pdf"] != 1 || stats.Ingested["csv"] != 0 {
		t.Errorf("ingested = %v", stats.Ingested)
	}
	if stats.Deleted != 1 || stats.Cleared != 1 {
		t.Errorf("deleted = %d cleared = %d", stats.Deleted, stats.Cleared)
	}
	if stats.ModelUsage["google/gemini-2.5-flash"] != 2 {
		t.Errorf("model usage = %v", stats.ModelUsage)
	}
	if stats.FailureByText["rate limited"] != 1 {
		t.Errorf("failures = %v", stats.FailureByText)
	}
	if u := stats.UserStats[123]; u.Questions != 2 || u.FailedAsks != 1 {
		t.Errorf("user 123 = %+v", u)
	}
	if u := stats.UserStats[456]; u.Ingested != 1 {
		t.Errorf("user 456 = %+v", u)
	}
}

func TestSummary(t *testing.T) {
	stats := &DailyStats{
		Date:          "2024-01-15",
		Questions:     5,
		FailedAsks:    1,
		UniqueUsers:   2,
		Ingested:      map[string]int{"pdf": 2},
		ModelUsage:    map[string]int{"b/model": 1, "a/model": 4},
		FailureByText: map[string]int{"rate limited": 1},
		UserStats: map[int64]UserStats{
			2: {UserID: 2, Questions: 1},
			1: {UserID: 1, Questions: 4, FailedAsks: 1, Ingested: 2},
		},
	}

	s := stats.Summary()
	for _, want := range []string{
		"Report for 2024-01-15",
		"Questions: 5 (failed: 1)",
		"Active users: 2",
		"- pdf: 2",
		"- rate limited: 1",
		"- 1: 4 questions, 1 failed, 2 uploads",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
	if strings.Index(s, "a/model") > strings.Index(s, "b/model") {
		t.Errorf("models not ordered by usage:\n%s", s)
	}
	if strings.Index(s, "- 1:") > strings.Index(s, "- 2:") {
		t.Errorf("users not ordered by id:\n%s", s)
	}
}

func TestToJSON(t *testing.T) {
	js, err := AnalyzeDay(nil, time.Now()).ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	if !strings.Contains(js, `"questions": 0`) {
		t.Errorf("unexpected json: %s", js)
	}
}
