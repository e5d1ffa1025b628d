package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"chat-relay/internal/storage"
)

// DailyStats aggregates relay usage for one day.
type DailyStats struct {
	Date          string               `json:"date"`
	TotalMessages int                  `json:"total_messages"`
	UniqueUsers   int                  `json:"unique_users"`
	TotalTokens   int                  `json:"total_tokens"`
	UserStats     map[string]UserStats `json:"user_stats"`
}

type UserStats struct {
	UserID      string `json:"user_id"`
	Messages    int    `json:"messages"`
	TotalTokens int    `json:"total_tokens"`
}

// AnalyzeDailyLogs aggregates audit events that fall on targetDate.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:      startOfDay.Format("2006-01-02"),
		UserStats: make(map[string]UserStats),
	}

	uniqueUsers := make(map[string]bool)

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}

		stats.TotalMessages++
		stats.TotalTokens += event.TotalTokens
		uniqueUsers[event.UserID] = true

		userStat := stats.UserStats[event.UserID]
		userStat.UserID = event.UserID
		userStat.Messages++
		userStat.TotalTokens += event.TotalTokens
		stats.UserStats[event.UserID] = userStat
	}

	stats.UniqueUsers = len(uniqueUsers)
	return stats
}

// Summary renders a short human-readable report.
func (ds *DailyStats) Summary() string {
	out := fmt.Sprintf("usage for %s: %d messages from %d users, %d tokens\n",
		ds.Date, ds.TotalMessages, ds.UniqueUsers, ds.TotalTokens)

	ids := make([]string, 0, len(ds.UserStats))
	for id := range ds.UserStats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		u := ds.UserStats[id]
		out += fmt.Sprintf("- %s: %d messages, %d tokens\n", id, u.Messages, u.TotalTokens)
	}
	return out
}

// ToJSON serializes the stats for detailed analysis.
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
