package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// LoadWAV decodes a PCM WAV file into a mono clip.
func LoadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	clip, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return clip, nil
}

// DecodeWAV reads a PCM WAV stream. Stereo is mixed down to mono; more
// channels are rejected.
func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidFormat
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, ErrInvalidFormat
	}

	channels := buf.Format.NumChannels
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%d channels: %w", channels, ErrUnsupportedChannels)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("%d-bit samples: %w", bitDepth, ErrInvalidFormat)
	}

	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, ErrEmptyClip
	}

	samples := make([]float64, frames)
	for i := range samples {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += normalize(buf.Data[i*channels+ch], bitDepth)
		}
		samples[i] = sum / float64(channels)
	}

	return &Clip{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		BitDepth:   bitDepth,
		Channels:   channels,
		Format:     FormatWAV,
	}, nil
}

// normalize maps an integer PCM sample to [-1, 1]. 8-bit WAV is unsigned.
func normalize(v, bitDepth int) float64 {
	if bitDepth == 8 {
		return (float64(v) - 128) / 128
	}
	return float64(v) / math.Exp2(float64(bitDepth-1))
}

// WriteWAV encodes a clip as 16-bit mono PCM.
func WriteWAV(w io.WriteSeeker, clip *Clip) error {
	if clip == nil || len(clip.Samples) == 0 {
		return ErrEmptyClip
	}

	data := make([]int, len(clip.Samples))
	for i, s := range clip.Samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(s * 32767.0)
	}

	encoder := wav.NewEncoder(w, clip.SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  clip.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("failed to write PCM buffer: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return nil
}

// SaveWAV writes clip to path as 16-bit mono PCM.
func SaveWAV(path string, clip *Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	if err := WriteWAV(f, clip); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
