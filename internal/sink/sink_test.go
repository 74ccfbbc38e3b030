// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sink

import (
	"bytes"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/livereader/internal/streamerr"
)

// pipeRecorder keeps every write as a separate slice.
type pipeRecorder struct {
	writes [][]byte
	err    error
	closed bool
}

func (p *pipeRecorder) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *pipeRecorder) Close() error {
	p.closed = true
	return nil
}

func (p *pipeRecorder) joined() []byte {
	return bytes.Join(p.writes, nil)
}

func newTestSink(opts Options) (*Sink, *pipeRecorder, *pipeRecorder, *bytes.Buffer) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	opts.Logger = &logger
	video, audio := &pipeRecorder{}, &pipeRecorder{}
	return New(video, audio, opts), video, audio, &logs
}

func warnings(logs *bytes.Buffer) int {
	return strings.Count(logs.String(), `"level":"warn"`)
}

func TestFlushVideo_Empty(t *testing.T) {
	s, video, _, logs := newTestSink(Options{})

	require.NoError(t, s.FlushVideo())
	assert.Empty(t, video.writes, "never writes a zero-length frame")
	assert.Equal(t, 1, warnings(logs))
}

func TestFlushVideo_ReemitsCurrentFrame(t *testing.T) {
	s, video, _, _ := newTestSink(Options{})
	s.SetVideoBuffer([]byte("frame-A"))

	require.NoError(t, s.FlushVideo())
	require.NoError(t, s.FlushVideo())

	assert.Equal(t, [][]byte{[]byte("frame-A"), []byte("frame-A")}, video.writes)
}

func TestFlushAudioChunk_EmptyWritesSilence(t *testing.T) {
	s, _, audio, _ := newTestSink(Options{})

	done, err := s.FlushAudioChunk()
	require.NoError(t, err)
	assert.True(t, done)
	require.Len(t, audio.writes, 1)
	assert.Equal(t, make([]byte, DefaultChunkSize), audio.writes[0])
}

func TestFlushAudioChunk_RoundTrip(t *testing.T) {
	for _, tc := range []struct {
		length, chunk int
	}{
		{1, 800}, {799, 800}, {800, 800}, {801, 800}, {2000, 800}, {4096, 100}, {10, 3},
	} {
		s, _, audio, _ := newTestSink(Options{ChunkSize: tc.chunk})
		buf := make([]byte, tc.length)
		for i := range buf {
			buf[i] = byte(i % 251)
		}
		s.SetAudioBuffer(buf)

		want := (tc.length + tc.chunk - 1) / tc.chunk
		for i := 1; i <= want; i++ {
			done, err := s.FlushAudioChunk()
			require.NoError(t, err)
			assert.Equal(t, i == want, done, "L=%d C=%d call %d", tc.length, tc.chunk, i)
		}

		assert.Len(t, audio.writes, want, "L=%d C=%d", tc.length, tc.chunk)
		assert.Equal(t, buf, audio.joined(), "concatenation equals original")
		assert.Zero(t, s.AudioRemaining())
	}
}

func TestFlushAudioChunk_2000BytesIn800Chunks(t *testing.T) {
	s, _, audio, _ := newTestSink(Options{})
	s.SetAudioBuffer(bytes.Repeat([]byte{1}, 2000))

	var dones []bool
	for range 3 {
		done, err := s.FlushAudioChunk()
		require.NoError(t, err)
		dones = append(dones, done)
	}

	require.Len(t, audio.writes, 3)
	assert.Equal(t, []int{800, 800, 400}, []int{len(audio.writes[0]), len(audio.writes[1]), len(audio.writes[2])})
	assert.Equal(t, []bool{false, false, true}, dones)
}

func TestSetAudioBuffer_DiscardsRemainder(t *testing.T) {
	s, _, audio, _ := newTestSink(Options{ChunkSize: 4})
	s.SetAudioBuffer([]byte("aaaabbbb"))
	_, err := s.FlushAudioChunk()
	require.NoError(t, err)

	s.SetAudioBuffer([]byte("cc"))
	done, err := s.FlushAudioChunk()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "aaaacc", string(audio.joined()))
}

func TestWriteRawAudio_RejectsShortBuffers(t *testing.T) {
	s, _, audio, logs := newTestSink(Options{})

	for _, n := range []int{0, 1, 3} {
		err := s.WriteRawAudio(make([]byte, n))
		assert.ErrorIs(t, err, streamerr.ErrMalformedBuffer)
		assert.False(t, streamerr.IsPipelineBroken(err))
	}
	assert.Empty(t, audio.writes)
	assert.Equal(t, 3, warnings(logs))

	require.NoError(t, s.WriteRawAudio([]byte{1, 2, 3, 4}))
	assert.Len(t, audio.writes, 1)
}

func TestWriteRawAudio_BypassesCursor(t *testing.T) {
	s, _, audio, _ := newTestSink(Options{ChunkSize: 2})
	s.SetAudioBuffer([]byte("xxyy"))

	require.NoError(t, s.WriteRawAudio([]byte("raw!")))
	assert.Equal(t, 4, s.AudioRemaining(), "cursor untouched")
	assert.Equal(t, "raw!", string(audio.joined()))
}

func TestWriteFailure_IsPipelineBroken(t *testing.T) {
	s, video, audio, _ := newTestSink(Options{})
	video.err = syscall.EPIPE
	audio.err = syscall.EPIPE

	s.SetVideoBuffer([]byte("frame"))
	err := s.FlushVideo()
	assert.True(t, streamerr.IsPipelineBroken(err))
	assert.ErrorIs(t, err, syscall.EPIPE)

	_, err = s.FlushAudioChunk()
	assert.True(t, streamerr.IsPipelineBroken(err))

	assert.True(t, streamerr.IsPipelineBroken(s.WriteRawAudio([]byte("abcd"))))
}

func TestWarnInterval_LimitsRepeats(t *testing.T) {
	s, _, _, logs := newTestSink(Options{WarnInterval: time.Hour})
	for range 100 {
		require.NoError(t, s.FlushVideo())
	}
	assert.Equal(t, 1, warnings(logs))
}

func TestClose_ClosesPipes(t *testing.T) {
	s, video, audio, _ := newTestSink(Options{})
	require.NoError(t, s.Close())
	assert.True(t, video.closed)
	assert.True(t, audio.closed)
}
