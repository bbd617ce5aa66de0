// Package animator drives the lipsync engine, shaping policy and face
// smoother from an audio clip or a live PCM stream, either on a real-time
// clock or offline.
package animator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/lipsync/internal/audio"
	"github.com/normanking/lipsync/internal/avatar3d"
	"github.com/normanking/lipsync/internal/bus"
	"github.com/normanking/lipsync/internal/config"
	"github.com/normanking/lipsync/internal/lipsync"
	"github.com/normanking/lipsync/internal/metrics"
	"github.com/normanking/lipsync/internal/morph"
	"github.com/normanking/lipsync/internal/stream"
)

// FrameSink receives wire messages. *stream.Hub satisfies it.
type FrameSink interface {
	Broadcast(v any) error
}

// Source feeds samples into the analyser. *audio.Player and
// *audio.StreamInput satisfy it.
type Source interface {
	Advance(dt time.Duration) []float64
	Position() time.Duration
	Done() bool
	Rewind()
}

// Options carries the optional collaborators of an Animator.
type Options struct {
	Events *bus.EventBus
	Sink   FrameSink
	Morphs *morph.Dictionary
	Logger zerolog.Logger
	Loop   bool // rewind at the end of the clip instead of stopping
}

// Output is everything produced for one frame.
type Output struct {
	Time     time.Duration
	Snapshot lipsync.Snapshot
	Frame    avatar3d.Frame
	Weights  avatar3d.BlendshapeWeights
	Speaking bool
	Changed  bool
}

// Animator owns one audio clip and the per-frame pipeline that animates it.
// Step is single-writer; SetConfig and SetExpression may be called from
// other goroutines.
type Animator struct {
	logger zerolog.Logger
	opts   Options
	fps    int

	player      Source
	analyser    *audio.SpectrumAnalyser
	vad         *audio.VAD
	engine      *lipsync.Engine
	eyes        *avatar3d.EyeController
	shaping     *avatar3d.ShapingPolicy
	expressions *avatar3d.ExpressionController
	face        *avatar3d.Face
	recorder    *lipsync.TimelineRecorder
	visemeRig   bool

	mu       sync.Mutex
	last     lipsync.Viseme
	speaking bool
	started  bool
}

// New wires the pipeline for clip using cfg.
func New(clip *audio.Clip, cfg *config.Config, opts Options) (*Animator, error) {
	if clip == nil || len(clip.Samples) == 0 {
		return nil, audio.ErrEmptyClip
	}
	return build(clip.SampleRate, cfg, opts, func(sink audio.SampleSink) (Source, error) {
		return audio.NewPlayer(clip, sink), nil
	})
}

// NewLive wires the pipeline for raw PCM read from r. Live input cannot be
// replayed, so Loop is ignored.
func NewLive(r io.Reader, sampleRate int, cfg *config.Config, opts Options) (*Animator, error) {
	opts.Loop = false
	return build(sampleRate, cfg, opts, func(sink audio.SampleSink) (Source, error) {
		return audio.NewStreamInput(r, sampleRate, sink)
	})
}

func build(sampleRate int, cfg *config.Config, opts Options, source func(audio.SampleSink) (Source, error)) (*Animator, error) {
	analyser, err := audio.NewSpectrumAnalyser(float64(sampleRate), cfg.AnalyserSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to create analyser: %w", err)
	}

	logger := opts.Logger.With().Str("component", "animator").Logger()
	engine := lipsync.NewEngine(cfg.EngineSettings(), opts.Logger)
	if err := engine.Connect(analyser); err != nil {
		return nil, err
	}

	player, err := source(analyser)
	if err != nil {
		return nil, err
	}

	a := &Animator{
		logger:      logger,
		opts:        opts,
		fps:         cfg.Stream.FPS,
		player:      player,
		analyser:    analyser,
		vad:         audio.NewVAD(nil),
		engine:      engine,
		eyes:        avatar3d.NewEyeController(cfg.BlinkSettings(), nil),
		shaping:     avatar3d.NewShapingPolicy(cfg.ShapingSettings()),
		expressions: avatar3d.NewExpressionController(),
		face:        avatar3d.NewFace(),
		recorder:    lipsync.NewTimelineRecorder(),
		last:        lipsync.VisemeSil,
	}
	if opts.Morphs != nil && isVisemeRig(opts.Morphs) {
		a.visemeRig = true
		logger.Info().Msg("Model has no ARKit mouth targets, driving viseme_* morphs")
	}
	return a, nil
}

// isVisemeRig reports whether d animates speech through per-viseme targets
// instead of ARKit mouth shapes.
func isVisemeRig(d *morph.Dictionary) bool {
	for _, idx := range avatar3d.MouthTargets() {
		if d.Has(idx.String()) {
			return false
		}
	}
	for _, v := range lipsync.Visemes() {
		if d.Has(v.TargetName()) {
			return true
		}
	}
	return false
}

// FrameInterval is the loop period.
func (a *Animator) FrameInterval() time.Duration {
	return time.Second / time.Duration(a.fps)
}

// SetConfig swaps the live-tunable settings.
func (a *Animator) SetConfig(cfg *config.Config) {
	a.shaping.SetConfig(cfg.ShapingSettings())
	a.eyes.SetConfig(cfg.BlinkSettings())
	a.logger.Info().Msg("Shaping and blink settings updated")
	a.publish(bus.EventTypeConfigReloaded, nil)
}

// SetExpression switches the facial expression preset.
func (a *Animator) SetExpression(name string) error {
	if err := a.expressions.Set(name); err != nil {
		return err
	}
	a.publish(bus.EventTypeExpressionChanged, map[string]any{"expression": name})
	return nil
}

// HandleControl applies a control message sent by a stream client.
func (a *Animator) HandleControl(c stream.Control) error {
	switch c.Type {
	case stream.TypeBlink:
		a.eyes.TriggerBlink()
	case stream.TypeWink:
		switch strings.ToLower(c.Side) {
		case "left":
			a.eyes.Wink(avatar3d.SideLeft)
		case "right":
			a.eyes.Wink(avatar3d.SideRight)
		default:
			return fmt.Errorf("wink side %q: want left or right", c.Side)
		}
	case stream.TypeExpression:
		return a.SetExpression(c.Name)
	default:
		return fmt.Errorf("unknown control type %q", c.Type)
	}
	a.logger.Debug().Str("type", c.Type).Str("side", c.Side).Msg("Control applied")
	return nil
}

// Done reports whether the clip has been fully played or the live stream
// has ended.
func (a *Animator) Done() bool {
	return a.player.Done()
}

// Step advances playback by dt and produces one frame.
func (a *Animator) Step(dt time.Duration) Output {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	if !a.started {
		a.started = true
		a.publish(bus.EventTypePlaybackStarted, nil)
	}

	chunk := a.player.Advance(dt)
	if len(chunk) > 0 {
		a.updateSpeaking(a.vad.Process(chunk, dt))
	}

	snap := a.engine.Tick()
	wasBlinking := a.eyes.IsBlinking()
	flags := a.eyes.Update(dt)
	if flags.Blink && !wasBlinking {
		a.publish(bus.EventTypeBlink, nil)
	}

	frame := a.shaping.Shape(snap, flags)
	a.face.Apply(dt, frame.Targets(), a.expressions.Targets())

	now := a.player.Position()
	changed := snap.Viseme != a.last
	if changed {
		a.publish(bus.EventTypeVisemeChanged, map[string]any{
			"viseme":    snap.Viseme.String(),
			"viseme_id": int(snap.Viseme),
			"previous":  a.last.String(),
			"class":     string(snap.Class),
			"volume":    snap.Volume,
		})
		a.broadcast(stream.VisemeMessage{
			Type:     stream.TypeViseme,
			Viseme:   snap.Viseme.String(),
			VisemeID: int(snap.Viseme),
			Time:     ms(now),
		})
		a.last = snap.Viseme
	}
	a.recorder.Record(now, snap)

	out := Output{
		Time:     now,
		Snapshot: snap,
		Frame:    frame,
		Weights:  a.face.Weights(),
		Speaking: a.speaking,
		Changed:  changed,
	}
	a.broadcast(a.message(out))
	metrics.ObserveTick(snap.Viseme.String(), changed, snap.Volume, time.Since(start))
	return out
}

func (a *Animator) updateSpeaking(r audio.VADResult) {
	if r.IsSpeech == a.speaking {
		return
	}
	a.speaking = r.IsSpeech
	if a.speaking {
		a.publish(bus.EventTypeSpeechStart, map[string]any{"rms": r.RMS})
	} else {
		a.publish(bus.EventTypeSpeechEnd, nil)
	}
}

func (a *Animator) message(out Output) stream.FrameMessage {
	weights := out.Weights.Map()
	msg := stream.FrameMessage{
		Type:     stream.TypeFrame,
		Tick:     out.Snapshot.Tick,
		Time:     ms(out.Time),
		Viseme:   out.Snapshot.Viseme.String(),
		VisemeID: int(out.Snapshot.Viseme),
		Class:    string(out.Snapshot.Class),
		Volume:   out.Snapshot.Volume,
		Speaking: out.Speaking,
		Weights:  weights,
	}
	if a.opts.Morphs != nil {
		if a.visemeRig {
			addVisemeWeight(weights, out)
		}
		msg.Morphs = a.opts.Morphs.MeshWeights(weights)
	}
	return msg
}

// addVisemeWeight drives the current viseme's target by how far the smoothed
// mouth is open.
func addVisemeWeight(weights map[string]float32, out Output) {
	if out.Snapshot.Viseme == lipsync.VisemeSil {
		return
	}
	var open float32
	for _, idx := range avatar3d.MouthTargets() {
		if w := out.Weights.Get(idx); w > open {
			open = w
		}
	}
	if open > 0 {
		weights[out.Snapshot.Viseme.TargetName()] = open
	}
}

func (a *Animator) broadcast(v any) {
	if a.opts.Sink == nil {
		return
	}
	if err := a.opts.Sink.Broadcast(v); err != nil {
		a.logger.Warn().Err(err).Msg("Broadcast failed")
	}
}

func (a *Animator) publish(t bus.EventType, data map[string]any) {
	if a.opts.Events != nil {
		a.opts.Events.Publish(bus.NewEvent(t, data))
	}
}

func (a *Animator) finish() {
	a.publish(bus.EventTypePlaybackFinished, nil)
	a.logger.Info().Dur("duration", a.player.Position()).Msg("Playback finished")
}

// Run steps the pipeline on a wall-clock ticker until the clip ends or ctx
// is done. With Loop set the clip restarts instead of ending.
func (a *Animator) Run(ctx context.Context) error {
	interval := a.FrameInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info().Int("fps", a.fps).Msg("Animation loop started")
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			a.Step(dt)

			if a.player.Done() {
				a.finish()
				if !a.opts.Loop {
					return nil
				}
				a.rewind()
			}
		}
	}
}

func (a *Animator) rewind() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.player.Rewind()
	a.analyser.Reset()
	a.vad.Reset()
	a.recorder = lipsync.NewTimelineRecorder()
	a.started = false
}

// Analyze steps through the whole clip at the configured frame rate without
// waiting on a clock and returns the recorded timeline. fn, if set, sees
// every frame.
func (a *Animator) Analyze(fn func(Output)) *lipsync.Timeline {
	dt := a.FrameInterval()
	for !a.player.Done() {
		out := a.Step(dt)
		if fn != nil {
			fn(out)
		}
	}
	a.finish()
	return a.Timeline()
}

// Timeline closes the recording at the current playhead.
func (a *Animator) Timeline() *lipsync.Timeline {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recorder.Finish(a.player.Position())
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
