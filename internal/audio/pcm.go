package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Raw PCM input is signed 16-bit little-endian mono, the format of
// `arecord -f S16_LE -c 1` and `ffmpeg -f s16le -ac 1`.

func pcmSample(lo, hi byte) float64 {
	return float64(int16(binary.LittleEndian.Uint16([]byte{lo, hi}))) / 32768
}

// DecodePCM reads raw PCM until EOF into a clip.
func DecodePCM(r io.Reader, sampleRate int) (*Clip, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d: %w", sampleRate, ErrInvalidFormat)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM: %w", err)
	}
	n := len(data) / 2
	if n == 0 {
		return nil, ErrEmptyClip
	}
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = pcmSample(data[2*i], data[2*i+1])
	}
	return &Clip{
		Samples:    samples,
		SampleRate: sampleRate,
		BitDepth:   16,
		Channels:   1,
		Format:     FormatPCM,
	}, nil
}

// StreamInput feeds live raw PCM from a reader into a sink. Unlike Player it
// is paced by the producer: each Advance hands over whatever has arrived.
type StreamInput struct {
	mu       sync.Mutex
	sink     SampleSink
	rate     int
	pending  []float64
	consumed int
	eof      bool
	err      error
}

// NewStreamInput starts reading r in the background.
func NewStreamInput(r io.Reader, sampleRate int, sink SampleSink) (*StreamInput, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d: %w", sampleRate, ErrInvalidFormat)
	}
	s := &StreamInput{sink: sink, rate: sampleRate}
	go s.readLoop(bufio.NewReader(r))
	return s, nil
}

func (s *StreamInput) readLoop(r io.Reader) {
	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			samples := make([]float64, len(data)/2)
			for i := range samples {
				samples[i] = pcmSample(data[2*i], data[2*i+1])
			}
			carry = append([]byte(nil), data[2*len(samples):]...)

			s.mu.Lock()
			s.pending = append(s.pending, samples...)
			// Keep at most two seconds if nobody is consuming.
			if limit := 2 * s.rate; len(s.pending) > limit {
				s.consumed += len(s.pending) - limit
				s.pending = s.pending[len(s.pending)-limit:]
			}
			s.mu.Unlock()
		}
		if err != nil {
			s.mu.Lock()
			s.eof = true
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			s.mu.Unlock()
			return
		}
	}
}

// Advance returns every sample received since the last call. dt is ignored;
// the producer sets the pace.
func (s *StreamInput) Advance(dt time.Duration) []float64 {
	s.mu.Lock()
	chunk := s.pending
	s.pending = nil
	s.consumed += len(chunk)
	s.mu.Unlock()

	if len(chunk) > 0 && s.sink != nil {
		s.sink.Write(chunk)
	}
	return chunk
}

// Position returns how much audio has been consumed.
func (s *StreamInput) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.consumed) * time.Second / time.Duration(s.rate)
}

// Done reports whether the reader ended and everything was consumed.
func (s *StreamInput) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof && len(s.pending) == 0
}

// Rewind is a no-op; live input cannot be replayed.
func (s *StreamInput) Rewind() {}

// Err returns the read error that ended the stream, if any.
func (s *StreamInput) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
