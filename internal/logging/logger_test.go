package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerHistoryCapturesComponents(t *testing.T) {
	var out bytes.Buffer
	l, err := New(&Config{Level: LevelDebug, MaxHistory: 10, Console: true, Output: &out})
	require.NoError(t, err)
	defer l.Close()

	eng := l.Component("engine")
	eng.Info().Int("fft_size", 1024).Msg("Analyser connected")
	sub := l.Component("stream")
	sub.Warn().Str("client", "abc").Msg("Client too slow")

	hist := l.GetHistory(2)
	require.Len(t, hist, 2)
	assert.Equal(t, "info", hist[0].Level)
	assert.Equal(t, "engine", hist[0].Component)
	assert.Equal(t, "Analyser connected", hist[0].Message)
	assert.Equal(t, "fft_size=1024", hist[0].Data)

	assert.Equal(t, "warn", hist[1].Level)
	assert.Equal(t, "stream", hist[1].Component)
	assert.Equal(t, "client=abc", hist[1].Data)

	assert.Contains(t, out.String(), "Client too slow")
}

func TestLoggerLevelFilters(t *testing.T) {
	l, err := New(&Config{Level: LevelWarn, Console: false})
	require.NoError(t, err)

	x := l.Component("x")
	x.Info().Msg("dropped")
	x.Error().Err(errors.New("boom")).Msg("kept")

	hist := l.GetHistory(0)
	require.Len(t, hist, 1)
	assert.Equal(t, "kept", hist[0].Message)
	assert.Equal(t, "error=boom", hist[0].Data)
}

func TestLoggerHistoryBounded(t *testing.T) {
	l, err := New(&Config{Level: LevelInfo, MaxHistory: 3})
	require.NoError(t, err)

	x := l.Component("x")
	for i := 0; i < 10; i++ {
		x.Info().Msg(strings.Repeat("m", i+1))
	}
	hist := l.GetHistory(100)
	require.Len(t, hist, 3)
	assert.Equal(t, strings.Repeat("m", 10), hist[2].Message)
}

func TestLoggerFileOutput(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&Config{LogDir: dir, Level: LevelInfo})
	require.NoError(t, err)

	x := l.Component("x")
	x.Info().Msg("to disk")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.GetLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to disk"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", ParseLevel(LevelDebug).String())
	assert.Equal(t, "info", ParseLevel("verbose").String())
}

func TestLoggerOnLogStreamsEntries(t *testing.T) {
	l, err := New(&Config{Level: LevelInfo})
	require.NoError(t, err)

	got := make(chan LogEntry, 4)
	l.SetOnLog(func(e LogEntry) { got <- e })

	c := l.Component("stream")
	c.Info().Str("client", "abc").Msg("Client connected")

	select {
	case e := <-got:
		assert.Equal(t, "stream", e.Component)
		assert.Equal(t, "Client connected", e.Message)
		assert.Equal(t, "client=abc", e.Data)
	case <-time.After(time.Second):
		t.Fatal("callback not called")
	}

	l.SetOnLog(nil)
	c.Info().Msg("not streamed")
	select {
	case e := <-got:
		t.Fatalf("unexpected entry %q", e.Message)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Len(t, l.GetHistory(0), 2)
}
