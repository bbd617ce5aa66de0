package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmBytes(samples ...int16) []byte {
	var buf bytes.Buffer
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, s)
	}
	return buf.Bytes()
}

func TestDecodePCM(t *testing.T) {
	clip, err := DecodePCM(bytes.NewReader(pcmBytes(0, 16384, -32768, 32767)), 16000)
	require.NoError(t, err)

	assert.Equal(t, FormatPCM, clip.Format)
	assert.Equal(t, 16000, clip.SampleRate)
	require.Len(t, clip.Samples, 4)
	assert.Equal(t, 0.0, clip.Samples[0])
	assert.Equal(t, 0.5, clip.Samples[1])
	assert.Equal(t, -1.0, clip.Samples[2])
	assert.InDelta(t, 1.0, clip.Samples[3], 1e-4)
}

func TestDecodePCMErrors(t *testing.T) {
	_, err := DecodePCM(bytes.NewReader([]byte{1}), 16000)
	assert.ErrorIs(t, err, ErrEmptyClip)

	_, err = DecodePCM(bytes.NewReader(pcmBytes(1, 2)), 0)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestStreamInput(t *testing.T) {
	pr, pw := io.Pipe()
	sink := &recordingSink{}
	in, err := NewStreamInput(pr, 8000, sink)
	require.NoError(t, err)

	// The second sample is split across writes.
	data := pcmBytes(100, 200, 300)
	go func() {
		pw.Write(data[:3])
		pw.Write(data[3:])
		pw.Close()
	}()

	require.Eventually(t, func() bool {
		in.Advance(time.Millisecond)
		return in.Done()
	}, 2*time.Second, 5*time.Millisecond)

	require.Len(t, sink.samples, 3)
	assert.InDelta(t, 200.0/32768, sink.samples[1], 1e-12)
	assert.Equal(t, 3*time.Second/8000, in.Position())
	assert.NoError(t, in.Err())
	assert.Nil(t, in.Advance(time.Millisecond))
}

func TestStreamInputReadError(t *testing.T) {
	pr, pw := io.Pipe()
	in, err := NewStreamInput(pr, 8000, nil)
	require.NoError(t, err)

	pw.CloseWithError(errors.New("device unplugged"))
	require.Eventually(t, in.Done, time.Second, 5*time.Millisecond)
	assert.ErrorContains(t, in.Err(), "device unplugged")
}
