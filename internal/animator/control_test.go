package animator

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/lipsync/internal/avatar3d"
	"github.com/normanking/lipsync/internal/config"
	"github.com/normanking/lipsync/internal/lipsync"
	"github.com/normanking/lipsync/internal/morph"
	"github.com/normanking/lipsync/internal/stream"
)

func TestHandleControl(t *testing.T) {
	a, err := New(silentClip(time.Second), config.DefaultConfig(), Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	require.NoError(t, a.HandleControl(stream.Control{Type: stream.TypeWink, Side: "right"}))
	out := a.Step(a.FrameInterval())
	assert.Greater(t, out.Weights.Get(avatar3d.EyeBlinkRight), float32(0))
	assert.Zero(t, out.Weights.Get(avatar3d.EyeBlinkLeft))

	require.NoError(t, a.HandleControl(stream.Control{Type: stream.TypeBlink}))
	assert.True(t, a.eyes.IsBlinking())

	require.NoError(t, a.HandleControl(stream.Control{Type: stream.TypeExpression, Name: "smile"}))
	assert.Equal(t, "smile", a.expressions.Current())

	assert.Error(t, a.HandleControl(stream.Control{Type: stream.TypeWink, Side: "middle"}))
	assert.Error(t, a.HandleControl(stream.Control{Type: stream.TypeExpression, Name: "smirk"}))
	assert.Error(t, a.HandleControl(stream.Control{Type: "dance"}))
}

func TestWinkFromStreamClient(t *testing.T) {
	a, err := New(silentClip(time.Minute), config.DefaultConfig(), Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	hub := stream.NewHub(60, nil, zerolog.Nop())
	hub.SetControlHandler(func(_ string, c stream.Control) error { return a.HandleControl(c) })
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello stream.Hello
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&hello))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"wink","side":"left"}`)))

	require.Eventually(t, func() bool {
		out := a.Step(a.FrameInterval())
		return out.Weights.Get(avatar3d.EyeBlinkLeft) > 0
	}, 2*time.Second, 5*time.Millisecond)
}

// visemeModel is a Ready Player Me style head with one target per viseme
// and no ARKit mouth shapes.
func visemeModel(t *testing.T) *morph.Dictionary {
	t.Helper()
	var targets, names []string
	for i, v := range lipsync.Visemes() {
		targets = append(targets, fmt.Sprintf(`{"POSITION": %d}`, i+1))
		names = append(names, fmt.Sprintf("%q", v.TargetName()))
	}
	names = append(names, `"eyeBlinkLeft"`, `"eyeBlinkRight"`)
	n := len(targets)
	targets = append(targets, fmt.Sprintf(`{"POSITION": %d}`, n+1), fmt.Sprintf(`{"POSITION": %d}`, n+2))

	body := fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "meshes": [{
    "name": "Wolf3D_Head",
    "primitives": [{"attributes": {"POSITION": 0}, "targets": [%s]}],
    "extras": {"targetNames": [%s]}
  }]
}`, strings.Join(targets, ", "), strings.Join(names, ", "))

	path := filepath.Join(t.TempDir(), "head.gltf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	d, err := morph.LoadDictionary(path)
	require.NoError(t, err)
	return d
}

func TestVisemeRigFallback(t *testing.T) {
	d := visemeModel(t)
	require.True(t, isVisemeRig(d))

	sink := &recordingSink{}
	a, err := New(noiseClip(time.Second), config.DefaultConfig(), Options{Sink: sink, Morphs: d, Logger: zerolog.Nop()})
	require.NoError(t, err)
	a.Analyze(nil)

	targets := d.Meshes[0].Targets
	var driven bool
	for _, f := range sink.frames {
		w := f.Morphs["Wolf3D_Head"]
		require.Len(t, w, len(targets))
		for i, name := range targets {
			if w[i] == 0 || !strings.HasPrefix(name, "viseme_") {
				continue
			}
			// Only the current viseme is driven.
			assert.Equal(t, "viseme_"+f.Viseme, name)
			driven = true
		}
	}
	assert.True(t, driven, "no viseme target was driven")
}

func TestARKitRigIsNotVisemeRig(t *testing.T) {
	body := `{
  "asset": {"version": "2.0"},
  "meshes": [{
    "name": "Head",
    "primitives": [{"attributes": {"POSITION": 0}, "targets": [{"POSITION": 1}, {"POSITION": 2}]}],
    "extras": {"targetNames": ["jawOpen", "viseme_aa"]}
  }]
}`
	path := filepath.Join(t.TempDir(), "head.gltf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	d, err := morph.LoadDictionary(path)
	require.NoError(t, err)
	assert.False(t, isVisemeRig(d))
}

func TestLiveInput(t *testing.T) {
	clip := noiseClip(500 * time.Millisecond)
	var pcm bytes.Buffer
	for _, s := range clip.Samples {
		binary.Write(&pcm, binary.LittleEndian, int16(s*32767))
	}

	pr, pw := io.Pipe()
	// Paced like a capture device: 20ms of audio every 10ms.
	go func() {
		chunk := make([]byte, 640)
		for {
			n, err := pcm.Read(chunk)
			if err != nil {
				pw.Close()
				return
			}
			pw.Write(chunk[:n])
			time.Sleep(10 * time.Millisecond)
		}
	}()

	cfg := config.DefaultConfig()
	cfg.Stream.FPS = 100
	sink := &recordingSink{}
	a, err := NewLive(pr, testRate, cfg, Options{Sink: sink, Logger: zerolog.Nop(), Loop: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))

	assert.True(t, a.Done())
	assert.Equal(t, 500*time.Millisecond, a.player.Position())
	assert.NotEmpty(t, sink.visems, "live audio never moved the mouth")
}
