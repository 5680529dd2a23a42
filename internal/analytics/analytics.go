package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"car-assistant/internal/storage"
)

// DailyStats summarises one UTC day of widget activity.
type DailyStats struct {
	Date          string             `json:"date"`
	Exchanges     int                `json:"exchanges"`
	Fallbacks     int                `json:"fallbacks"`
	Detailed      int                `json:"detailed"`
	Saves         int                `json:"saves"`
	SavedMessages int                `json:"saved_messages"`
	TotalTokens   int                `json:"total_tokens"`
	UniqueChats   int                `json:"unique_chats"`
	ByChat        map[int64]ChatStat `json:"by_chat"`
}

type ChatStat struct {
	ChatID    int64 `json:"chat_id"`
	Exchanges int   `json:"exchanges"`
	Fallbacks int   `json:"fallbacks"`
	Saves     int   `json:"saves"`
}

// AnalyzeDay aggregates the events that fall on day's calendar date in day's location.
func AnalyzeDay(events []storage.Event, day time.Time) *DailyStats {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:   start.Format("2006-01-02"),
		ByChat: make(map[int64]ChatStat),
	}
	for _, ev := range events {
		if ev.Timestamp.Before(start) || !ev.Timestamp.Before(end) {
			continue
		}
		cs, ok := stats.ByChat[ev.ChatID]
		if !ok {
			cs = ChatStat{ChatID: ev.ChatID}
		}
		switch ev.Kind {
		case storage.KindExchange:
			stats.Exchanges++
			stats.TotalTokens += ev.TotalTokens
			cs.Exchanges++
			if ev.Fallback {
				stats.Fallbacks++
				cs.Fallbacks++
			}
			if ev.Detailed {
				stats.Detailed++
			}
		case storage.KindSave:
			stats.Saves++
			stats.SavedMessages += ev.MessageCount
			cs.Saves++
		default:
			continue
		}
		stats.ByChat[ev.ChatID] = cs
	}
	stats.UniqueChats = len(stats.ByChat)
	return stats
}

// FallbackRate is the share of exchanges answered with the fallback reply.
func (ds *DailyStats) FallbackRate() float64 {
	if ds.Exchanges == 0 {
		return 0
	}
	return float64(ds.Fallbacks) / float64(ds.Exchanges)
}

// Summary renders a plain-text report.
func (ds *DailyStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assistant usage for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Questions answered: %d (detailed: %d)\n", ds.Exchanges, ds.Detailed)
	fmt.Fprintf(&b, "Fallback replies: %d (%.0f%%)\n", ds.Fallbacks, ds.FallbackRate()*100)
	fmt.Fprintf(&b, "Conversations saved: %d (%d messages)\n", ds.Saves, ds.SavedMessages)
	fmt.Fprintf(&b, "Tokens used: %d\n", ds.TotalTokens)
	fmt.Fprintf(&b, "Active chats: %d\n", ds.UniqueChats)

	ids := make([]int64, 0, len(ds.ByChat))
	for id := range ds.ByChat {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		cs := ds.ByChat[id]
		fmt.Fprintf(&b, "- chat %d: %d questions", id, cs.Exchanges)
		if cs.Fallbacks > 0 {
			fmt.Fprintf(&b, ", %d fallbacks", cs.Fallbacks)
		}
		if cs.Saves > 0 {
			fmt.Fprintf(&b, ", %d saves", cs.Saves)
		}
		b.WriteString("\n")
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
