package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(&app{log: zerolog.Nop()})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHistoryRequiresChat(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "disabled")

	_, err := execute(t, "history", "list")
	assert.ErrorContains(t, err, `"chat" not set`)

	_, err = execute(t, "history", "show", "chat_history_2024-01-01T00:00:00.000Z")
	assert.ErrorContains(t, err, `"chat" not set`)
}

func TestHistoryListEmptyStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "file")
	t.Setenv("STORE_PATH", filepath.Join(t.TempDir(), "history.json"))
	t.Setenv("LOG_LEVEL", "disabled")

	out, err := execute(t, "history", "list", "--chat", "42")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = execute(t, "history", "show", "--chat", "42", "chat_history_2024-01-01T00:00:00.000Z")
	assert.ErrorContains(t, err, "history not found")
}

func TestEvictionInterval(t *testing.T) {
	assert.Zero(t, evictionInterval(0))
	assert.Equal(t, time.Minute, evictionInterval(2*time.Minute))
	assert.Equal(t, 15*time.Minute, evictionInterval(time.Hour))
}
