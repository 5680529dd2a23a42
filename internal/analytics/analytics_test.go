package analytics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"car-assistant/internal/storage"
)

func TestAnalyzeDay(t *testing.T) {
	day := time.Date(2024, 9, 12, 15, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return time.Date(2024, 9, 12, h, 0, 0, 0, time.UTC) }
	events := []storage.Event{
		{Kind: storage.KindExchange, Timestamp: at(1), ChatID: 1, TotalTokens: 10},
		{Kind: storage.KindExchange, Timestamp: at(2), ChatID: 1, Fallback: true},
		{Kind: storage.KindExchange, Timestamp: at(3), ChatID: 2, Detailed: true, TotalTokens: 5},
		{Kind: storage.KindSave, Timestamp: at(4), ChatID: 1, MessageCount: 4},
		{Kind: "unknown", Timestamp: at(5), ChatID: 3},
		{Kind: storage.KindExchange, Timestamp: at(0).Add(-time.Second), ChatID: 9},
		{Kind: storage.KindExchange, Timestamp: at(0).AddDate(0, 0, 1), ChatID: 9},
	}

	stats := AnalyzeDay(events, day)
	assert.Equal(t, "2024-09-12", stats.Date)
	assert.Equal(t, 3, stats.Exchanges)
	assert.Equal(t, 1, stats.Fallbacks)
	assert.Equal(t, 1, stats.Detailed)
	assert.Equal(t, 1, stats.Saves)
	assert.Equal(t, 4, stats.SavedMessages)
	assert.Equal(t, 15, stats.TotalTokens)
	assert.Equal(t, 2, stats.UniqueChats)
	assert.Equal(t, ChatStat{ChatID: 1, Exchanges: 2, Fallbacks: 1, Saves: 1}, stats.ByChat[1])
	assert.InDelta(t, 1.0/3.0, stats.FallbackRate(), 1e-9)

	summary := stats.Summary()
	assert.True(t, strings.HasPrefix(summary, "Assistant usage for 2024-09-12"))
	assert.Contains(t, summary, "Fallback replies: 1 (33%)")
	assert.Contains(t, summary, "- chat 1: 2 questions, 1 fallbacks, 1 saves")

	js, err := stats.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, js, `"exchanges": 3`)
}

func TestAnalyzeDay_Empty(t *testing.T) {
	stats := AnalyzeDay(nil, time.Now())
	assert.Zero(t, stats.Exchanges)
	assert.Zero(t, stats.FallbackRate())
	assert.Contains(t, stats.Summary(), "Active chats: 0")
}
