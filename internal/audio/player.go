package audio

import (
	"sync"
	"time"
)

// SampleSink receives decoded samples in playback order.
type SampleSink interface {
	Write(samples []float64)
}

// Player steps through a clip on an external clock and feeds the samples
// it passes into a sink. Nothing is sent to an output device.
type Player struct {
	mu      sync.Mutex
	clip    *Clip
	sink    SampleSink
	pos     int
	elapsed time.Duration
}

func NewPlayer(clip *Clip, sink SampleSink) *Player {
	return &Player{clip: clip, sink: sink}
}

// Advance moves the playhead forward by dt and returns the samples it
// passed over. At the end of the clip it returns nil.
func (p *Player) Advance(dt time.Duration) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pos >= len(p.clip.Samples) || dt <= 0 {
		return nil
	}
	p.elapsed += dt
	// End is derived from total elapsed time, not summed per-call counts.
	end := int(p.elapsed.Seconds() * float64(p.clip.SampleRate))
	if end <= p.pos {
		return nil
	}
	if end > len(p.clip.Samples) {
		end = len(p.clip.Samples)
	}
	chunk := p.clip.Samples[p.pos:end]
	p.pos = end
	if p.sink != nil {
		p.sink.Write(chunk)
	}
	return chunk
}

// Position returns the playhead offset.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.pos) * time.Second / time.Duration(p.clip.SampleRate)
}

// Done reports whether the whole clip has been played.
func (p *Player) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos >= len(p.clip.Samples)
}

// Rewind moves the playhead back to the start.
func (p *Player) Rewind() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = 0
	p.elapsed = 0
}
