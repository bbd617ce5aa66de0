package animator

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/avatar3d"
	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/config"
	"github.com/normanking/lipsync/internal/lipsync"
	"github.com/normanking/lipsync/internal/stream"
)

const testRate = 16000

type recordingSink struct {
	mu     sync.Mutex
	frames []stream.FrameMessage
	visems []stream.VisemeMessage
}

func (s *recordingSink) Broadcast(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch m := v.(type) {
	case stream.FrameMessage:
		s.frames = append(s.frames, m)
	case stream.VisemeMessage:
		s.visems = append(s.visems, m)
	}
	return nil
}

func silentClip(d time.Duration) *audio.Clip {
	return &audio.Clip{Samples: make([]float64, int(d.Seconds()*testRate)), SampleRate: testRate, Channels: 1, BitDepth: 16}
}

// noiseClip is broadband and loud enough to keep the engine out of silence.
func noiseClip(d time.Duration) *audio.Clip {
	rng := rand.New(rand.NewSource(1))
	samples := make([]float64, int(d.Seconds()*testRate))
	for i := range samples {
		samples[i] = rng.Float64() - 0.5
	}
	return &audio.Clip{Samples: samples, SampleRate: testRate, Channels: 1, BitDepth: 16}
}

func TestNewRejectsEmptyClip(t *testing.T) {
	_, err := New(&audio.Clip{SampleRate: testRate}, config.DefaultConfig(), Options{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, audio.ErrEmptyClip)
}

func TestAnalyzeSilence(t *testing.T) {
	sink := &recordingSink{}
	a, err := New(silentClip(500*time.Millisecond), config.DefaultConfig(), Options{Sink: sink, Logger: zerolog.Nop()})
	require.NoError(t, err)

	var steps int
	tl := a.Analyze(func(out Output) {
		steps++
		assert.Equal(t, lipsync.VisemeSil, out.Snapshot.Viseme)
		assert.False(t, out.Changed)
		for _, idx := range avatar3d.MouthTargets() {
			assert.Zero(t, out.Weights.Get(idx))
		}
	})

	assert.True(t, a.Done())
	assert.GreaterOrEqual(t, steps, 30)
	require.Len(t, tl.Events, 1)
	assert.Equal(t, "sil", tl.Events[0].Viseme)
	assert.InDelta(t, 500, tl.Duration, 1)
	assert.Len(t, sink.frames, steps)
	assert.Empty(t, sink.visems)
}

func TestAnalyzeNoiseOpensMouth(t *testing.T) {
	events := bus.NewEventBus()
	changes := make(chan bus.Event, 256)
	events.Subscribe(bus.EventTypeVisemeChanged, func(e bus.Event) {
		select {
		case changes <- e:
		default:
		}
	})

	sink := &recordingSink{}
	a, err := New(noiseClip(time.Second), config.DefaultConfig(), Options{Events: events, Sink: sink, Logger: zerolog.Nop()})
	require.NoError(t, err)

	var opened, speaking bool
	tl := a.Analyze(func(out Output) {
		if out.Speaking {
			speaking = true
		}
		for _, idx := range avatar3d.MouthTargets() {
			if out.Weights.Get(idx) > 0 {
				opened = true
			}
		}
	})

	assert.True(t, opened, "mouth never moved")
	assert.True(t, speaking, "VAD never fired")
	require.Greater(t, len(tl.Events), 1)
	assert.NotEqual(t, "sil", tl.Events[1].Viseme)
	assert.Len(t, sink.visems, countChanges(sink.frames))

	select {
	case e := <-changes:
		assert.Equal(t, "sil", e.Data["previous"])
	case <-time.After(time.Second):
		t.Fatal("no viseme.changed event")
	}
}

func countChanges(frames []stream.FrameMessage) int {
	n := 0
	last := "sil"
	for _, f := range frames {
		if f.Viseme != last {
			n++
			last = f.Viseme
		}
	}
	return n
}

func TestSetExpression(t *testing.T) {
	a, err := New(silentClip(100*time.Millisecond), config.DefaultConfig(), Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	require.NoError(t, a.SetExpression("angry"))
	assert.Error(t, a.SetExpression("smirk"))

	out := a.Step(a.FrameInterval())
	assert.Greater(t, out.Weights.Get(avatar3d.BrowDownLeft), float32(0))
	// Mouth shapes stay with lipsync even though the preset names them.
	assert.Zero(t, out.Weights.Get(avatar3d.MouthFunnel))
}

func TestRunStopsAtEndOfClip(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Stream.FPS = 100
	a, err := New(silentClip(100*time.Millisecond), cfg, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))
	assert.True(t, a.Done())
}

func TestRunCancel(t *testing.T) {
	a, err := New(silentClip(time.Minute), config.DefaultConfig(), Options{Logger: zerolog.Nop(), Loop: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	assert.NoError(t, a.Run(ctx))
	assert.False(t, a.Done())
}

func TestSetConfigSwapsShaping(t *testing.T) {
	a, err := New(silentClip(100*time.Millisecond), config.DefaultConfig(), Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Shaping.Caps["jawOpen"] = 0.2
	a.SetConfig(cfg)
	assert.InDelta(t, 0.2, a.shaping.Config().Caps["jawOpen"], 1e-6)
}
