package media

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// Constraints запрос локального медиа
type Constraints struct {
	Audio bool
	Video bool
}

// Provider источник локального медиа (микрофон, камера, экран)
type Provider interface {
	UserMedia(ctx context.Context, c Constraints) (*Stream, error)
	DisplayMedia(ctx context.Context) (*Stream, error)
}

// SyntheticOptions параметры синтетического источника
type SyntheticOptions struct {
	// PacketInterval период генерации RTP пакетов (0 = треки без пакетов)
	PacketInterval time.Duration

	// PayloadSize размер полезной нагрузки пакета
	PayloadSize int

	Logger *slog.Logger
}

// SyntheticProvider выдает живые треки без реальных устройств.
// Аудио треки заполняются тишиной PCMU, если задан PacketInterval.
type SyntheticProvider struct {
	opts   SyntheticOptions
	logger *slog.Logger

	mu     sync.Mutex
	issued []*Stream
}

// NewSyntheticProvider создает синтетический источник
func NewSyntheticProvider(opts SyntheticOptions) *SyntheticProvider {
	if opts.PayloadSize <= 0 {
		opts.PayloadSize = 160
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SyntheticProvider{
		opts:   opts,
		logger: logger.With(slog.String("component", "synthetic_media")),
	}
}

func (p *SyntheticProvider) UserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewAcquireError("user media", err)
	}
	if !c.Audio && !c.Video {
		return nil, &Error{Code: ErrorCodeAcquireFailed, Message: "не запрошено ни аудио, ни видео"}
	}

	stream := NewStream()
	if c.Audio {
		track := NewTrack(KindAudio, "synthetic microphone")
		stream.AddTrack(track)
		p.generate(track, 0) // PCMU
	}
	if c.Video {
		track := NewTrack(KindVideo, "synthetic camera")
		stream.AddTrack(track)
		p.generate(track, 96)
	}
	p.remember(stream)
	return stream, nil
}

func (p *SyntheticProvider) DisplayMedia(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewAcquireError("display media", err)
	}
	track := NewTrack(KindVideo, "synthetic screen")
	stream := NewStreamWithTrack(track)
	p.generate(track, 96)
	p.remember(stream)
	return stream, nil
}

// Issued потоки, выданные источником
func (p *SyntheticProvider) Issued() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Stream, len(p.issued))
	copy(out, p.issued)
	return out
}

func (p *SyntheticProvider) remember(stream *Stream) {
	p.mu.Lock()
	p.issued = append(p.issued, stream)
	p.mu.Unlock()
}

// generate пишет пакеты в трек до его завершения
func (p *SyntheticProvider) generate(track *Track, payloadType uint8) {
	if p.opts.PacketInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(p.opts.PacketInterval)
		defer ticker.Stop()

		ssrc := rand.Uint32()
		seq := uint16(rand.UintN(1 << 16))
		var ts uint32
		payload := make([]byte, p.opts.PayloadSize)
		for i := range payload {
			payload[i] = 0xFF // тишина μ-law
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-track.Done()
			cancel()
		}()

		for {
			select {
			case <-track.Done():
				return
			case <-ticker.C:
			}
			pkt := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					PayloadType:    payloadType,
					SequenceNumber: seq,
					Timestamp:      ts,
					SSRC:           ssrc,
				},
				Payload: payload,
			}
			// при полном буфере пакет пропускается по таймауту
			writeCtx, writeCancel := context.WithTimeout(ctx, p.opts.PacketInterval)
			err := track.WriteRTP(writeCtx, pkt)
			writeCancel()
			if err != nil && track.Ended() {
				return
			}
			seq++
			ts += uint32(p.opts.PayloadSize)
		}
	}()
}
