package lipsync

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNoAnalyser is returned by Connect when no frequency analyser is
// available. The engine stays silent.
var ErrNoAnalyser = errors.New("no frequency analyser available")

// ErrBinCount is returned by Connect when an analyser claims more bins than
// its FFT size yields.
var ErrBinCount = errors.New("analyser bin count out of range")

// Analyser supplies magnitude spectra. Bins are linear in frequency with a
// width of SampleRate()/FFTSize() Hz; ByteFrequencyData fills dst with the
// current frame scaled to 0..255. FrequencyBinCount is the length of dst.
type Analyser interface {
	SampleRate() float64
	FFTSize() int
	FrequencyBinCount() int
	ByteFrequencyData(dst []uint8)
}

// Snapshot is the state published after each tick.
type Snapshot struct {
	Tick     uint64            `json:"tick"`
	Viseme   Viseme            `json:"viseme"`
	Class    ArticulatoryClass `json:"class"`
	Volume   float64           `json:"volume"`
	Features FrameFeatures     `json:"features"`
	Scores   Scores            `json:"-"`
}

// Config configures an Engine.
type Config struct {
	HistorySize int
}

// Engine owns the extractor, history and classifier for one audio source.
// Only Tick mutates them; other goroutines read Snapshot.
type Engine struct {
	logger      zerolog.Logger
	historySize int

	src        Analyser
	data       []uint8
	history    *History
	extractor  *Extractor
	classifier *Classifier
	ticks      uint64

	mu   sync.RWMutex
	snap Snapshot
}

// NewEngine creates an unconnected engine in the silence state.
func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	return &Engine{
		logger:      logger.With().Str("component", "lipsync").Logger(),
		historySize: cfg.HistorySize,
		history:     NewHistory(cfg.HistorySize),
		classifier:  NewClassifier(),
		snap:        Snapshot{Viseme: VisemeSil, Class: ClassSilence},
	}
}

// Connect attaches the engine to src. Connecting the source already attached
// is a no-op; a different source resets history and state.
func (e *Engine) Connect(src Analyser) error {
	if src == nil {
		e.logger.Warn().Msg("No analyser available, lipsync stays silent")
		return ErrNoAnalyser
	}
	if e.src == src {
		return nil
	}

	bins := src.FrequencyBinCount()
	if bins <= 0 || bins > src.FFTSize()/2 {
		return fmt.Errorf("analyser reports %d bins for fft size %d: %w", bins, src.FFTSize(), ErrBinCount)
	}
	e.src = src
	e.data = make([]uint8, bins)
	e.history = NewHistory(e.historySize)
	e.extractor = NewExtractor(src.SampleRate(), src.FFTSize(), bins, e.history)
	e.classifier.Reset()
	e.ticks = 0
	e.publish(Snapshot{Viseme: VisemeSil, Class: ClassSilence})

	e.logger.Info().
		Float64("sample_rate", src.SampleRate()).
		Int("fft_size", src.FFTSize()).
		Float64("bin_width", e.extractor.BinWidth()).
		Msg("Analyser connected")
	return nil
}

// Disconnect detaches the current source and returns to silence.
func (e *Engine) Disconnect() {
	e.src = nil
	e.extractor = nil
	e.history.Reset()
	e.classifier.Reset()
	e.publish(Snapshot{Viseme: VisemeSil, Class: ClassSilence})
}

// Connected reports whether a source is attached.
func (e *Engine) Connected() bool {
	return e.src != nil
}

// Tick runs one extraction and classification cycle. Without a source it
// does nothing.
func (e *Engine) Tick() Snapshot {
	if e.src == nil {
		return e.Snapshot()
	}

	e.src.ByteFrequencyData(e.data)
	cur := e.extractor.Extract(e.data)
	avg := e.history.Average()
	c := e.classifier.Classify(cur, avg)
	e.ticks++

	snap := Snapshot{
		Tick:     e.ticks,
		Viseme:   c.Viseme,
		Class:    c.Class,
		Volume:   cur.Volume,
		Features: cur,
		Scores:   c.Adjusted,
	}
	e.publish(snap)
	return snap
}

// Snapshot returns the last published state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap
}

// Viseme returns the current viseme.
func (e *Engine) Viseme() Viseme {
	return e.Snapshot().Viseme
}

// Volume returns the instantaneous volume of the last frame.
func (e *Engine) Volume() float64 {
	return e.Snapshot().Volume
}

// Class returns the current articulatory class.
func (e *Engine) Class() ArticulatoryClass {
	return e.Snapshot().Class
}

// HistoryLen returns how many frames the rolling window holds.
func (e *Engine) HistoryLen() int {
	return e.history.Len()
}

func (e *Engine) publish(s Snapshot) {
	e.mu.Lock()
	e.snap = s
	e.mu.Unlock()
}
