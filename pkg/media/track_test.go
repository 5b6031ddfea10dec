package media

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackStopIsIdempotent(t *testing.T) {
	track := NewTrack(KindAudio, "mic")
	var calls atomic.Int32
	track.OnEnded(func(*Track) { calls.Add(1) })

	assert.True(t, track.Stop())
	assert.False(t, track.Stop())
	assert.True(t, track.Ended())
	assert.Equal(t, "ended", track.State().String())
	assert.EqualValues(t, 1, calls.Load())

	// слушатель, добавленный после завершения, вызывается сразу
	track.OnEnded(func(*Track) { calls.Add(1) })
	assert.EqualValues(t, 2, calls.Load())
}

func TestTrackPacketFlow(t *testing.T) {
	track := NewTrack(KindAudio, "mic")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: 7}}
	require.NoError(t, track.WriteRTP(ctx, pkt))

	got, err := track.ReadRTP(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 7, got.SequenceNumber)

	track.Stop()
	err = track.WriteRTP(ctx, pkt)
	assert.True(t, errors.Is(err, ErrTrackEnded))
	_, err = track.ReadRTP(ctx)
	assert.True(t, errors.Is(err, ErrTrackEnded))
}

func TestTrackReadHonorsContext(t *testing.T) {
	track := NewTrack(KindVideo, "cam")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := track.ReadRTP(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamAllTracksEnded(t *testing.T) {
	assert.True(t, NewStream().AllTracksEnded(), "пустой поток считается завершенным")

	audio := NewTrack(KindAudio, "mic")
	video := NewTrack(KindVideo, "cam")
	stream := NewStream(audio, video)
	assert.Len(t, stream.AudioTracks(), 1)
	assert.Len(t, stream.VideoTracks(), 1)
	assert.True(t, stream.HasKind(KindVideo))

	audio.Stop()
	assert.False(t, stream.AllTracksEnded())
	video.Stop()
	assert.True(t, stream.AllTracksEnded())
}

func TestStreamOnAllTracksEndedFiresOnce(t *testing.T) {
	first := NewTrack(KindVideo, "screen")
	second := NewTrack(KindAudio, "system audio")
	stream := NewStream(first, second)

	var calls atomic.Int32
	stream.OnAllTracksEnded(func() { calls.Add(1) })

	first.Stop()
	assert.EqualValues(t, 0, calls.Load())
	second.Stop()
	stream.Stop()
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewStreamWithTrack(t *testing.T) {
	track := NewTrack(KindAudio, "mic")
	stream := NewStreamWithTrack(track)
	require.Len(t, stream.Tracks(), 1)
	assert.Same(t, track, stream.Tracks()[0])

	stream.AddTrack(track)
	assert.Len(t, stream.Tracks(), 1, "повторное добавление игнорируется")
	assert.NotEmpty(t, stream.ID())
}

func TestSyntheticProvider(t *testing.T) {
	provider := NewSyntheticProvider(SyntheticOptions{PacketInterval: 5 * time.Millisecond})
	ctx := context.Background()

	stream, err := provider.UserMedia(ctx, Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	defer stream.Stop()
	assert.Len(t, stream.AudioTracks(), 1)
	assert.Len(t, stream.VideoTracks(), 1)

	readCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	pkt, err := stream.AudioTracks()[0].ReadRTP(readCtx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, pkt.PayloadType)
	assert.Len(t, pkt.Payload, 160)

	_, err = provider.UserMedia(ctx, Constraints{})
	assert.ErrorIs(t, err, ErrAcquireFailed)

	display, err := provider.DisplayMedia(ctx)
	require.NoError(t, err)
	assert.Len(t, display.VideoTracks(), 1)
	assert.Len(t, provider.Issued(), 2)
	display.Stop()
}
