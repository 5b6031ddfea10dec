package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
)

// InboundMarker маркер общего элемента воспроизведения удаленного аудио
const InboundMarker = "__rtc-inbound"

// PacketWriter выход элемента, получающий пакеты удаленных треков
type PacketWriter interface {
	WriteRTP(trackID string, kind Kind, pkt *rtp.Packet) error
}

// PacketWriterFunc адаптер функции к PacketWriter
type PacketWriterFunc func(trackID string, kind Kind, pkt *rtp.Packet) error

func (f PacketWriterFunc) WriteRTP(trackID string, kind Kind, pkt *rtp.Packet) error {
	return f(trackID, kind, pkt)
}

// Element приемник удаленного медиа
type Element struct {
	marker string

	mu       sync.Mutex
	src      *Stream
	autoplay bool
	output   PacketWriter
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// NewElement создает элемент с маркером и выходом (выход может быть nil)
func NewElement(marker string, output PacketWriter) *Element {
	return &Element{marker: marker, output: output}
}

func (e *Element) Marker() string { return e.marker }

// Source текущий источник элемента
func (e *Element) Source() *Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

func (e *Element) Autoplay() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoplay
}

// SetOutput заменяет выход. Действует со следующего Attach.
func (e *Element) SetOutput(output PacketWriter) {
	e.mu.Lock()
	e.output = output
	e.mu.Unlock()
}

// Forwarded количество пакетов, переданных в выход
func (e *Element) Forwarded() uint64 { return e.forwarded.Load() }

// Dropped количество пакетов, которые выход не принял
func (e *Element) Dropped() uint64 { return e.dropped.Load() }

// stopLocked останавливает пересылку. Вызывается под e.mu.
func (e *Element) stopLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.wg.Wait()
}

// SinksOptions параметры реестра приемников
type SinksOptions struct {
	Logger *slog.Logger

	// Output создает выход для элементов, создаваемых по маркеру
	Output func(marker string) PacketWriter

	// ReorderDepth глубина буфера переупорядочивания (0 = без буфера)
	ReorderDepth int
}

// Sinks реестр элементов воспроизведения
type Sinks struct {
	mu       sync.Mutex
	elements map[string]*Element
	opts     SinksOptions
	logger   *slog.Logger
}

// NewSinks создает реестр приемников
func NewSinks(opts SinksOptions) *Sinks {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sinks{
		elements: make(map[string]*Element),
		opts:     opts,
		logger:   logger.With(slog.String("component", "media_sinks")),
	}
}

// Acquire возвращает явно заданный элемент или общий элемент InboundMarker
func (s *Sinks) Acquire(explicit *Element) *Element {
	if explicit != nil {
		return explicit
	}
	return s.AcquireMarker(InboundMarker)
}

// AcquireMarker возвращает элемент с маркером, создавая его при первом обращении
func (s *Sinks) AcquireMarker(marker string) *Element {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.elements[marker]; ok {
		return el
	}
	var output PacketWriter
	if s.opts.Output != nil {
		output = s.opts.Output(marker)
	}
	el := NewElement(marker, output)
	s.elements[marker] = el
	s.logger.Debug("created sink element", slog.String("marker", marker))
	return el
}

// Lookup возвращает элемент по маркеру без создания
func (s *Sinks) Lookup(marker string) (*Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[marker]
	return el, ok
}

// Attach делает stream источником элемента и запускает пересылку пакетов.
// Замена живого источника допустима, но логируется предупреждением.
func (s *Sinks) Attach(el *Element, stream *Stream) error {
	if el == nil {
		return &Error{Code: ErrorCodeSinkClosed, Message: "элемент не задан"}
	}
	if stream == nil {
		return &Error{Code: ErrorCodeInvalidStream, Message: "поток не задан"}
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	if el.src != nil && el.src != stream && !el.src.AllTracksEnded() {
		s.logger.Warn("sink element already has a live source, overwriting",
			slog.String("marker", el.marker),
			slog.String("old_stream", el.src.ID()),
			slog.String("new_stream", stream.ID()))
	}
	el.stopLocked()

	el.src = stream
	el.autoplay = true

	ctx, cancel := context.WithCancel(context.Background())
	el.cancel = cancel
	output := el.output
	for _, track := range stream.Tracks() {
		el.wg.Add(1)
		go s.pump(ctx, el, output, track)
	}
	return nil
}

// Detach очищает источник элемента. Безопасен для пустого элемента.
func (s *Sinks) Detach(el *Element) {
	if el == nil {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.src == nil && el.cancel == nil {
		return
	}
	el.stopLocked()
	el.src = nil
}

func (s *Sinks) pump(ctx context.Context, el *Element, output PacketWriter, track *Track) {
	defer el.wg.Done()

	var reorder *reorderBuffer
	if s.opts.ReorderDepth > 0 {
		reorder = newReorderBuffer(s.opts.ReorderDepth)
	}

	deliver := func(pkt *rtp.Packet) {
		if output == nil {
			el.forwarded.Add(1)
			return
		}
		if err := output.WriteRTP(track.ID(), track.Kind(), pkt); err != nil {
			el.dropped.Add(1)
			s.logger.Debug("sink output rejected packet",
				slog.String("marker", el.marker),
				slog.String("track_id", track.ID()),
				slog.String("error", err.Error()))
			return
		}
		el.forwarded.Add(1)
	}

	for {
		pkt, err := track.ReadRTP(ctx)
		if err != nil {
			if reorder != nil && ctx.Err() == nil {
				for _, p := range reorder.Flush() {
					deliver(p)
				}
			}
			return
		}
		if reorder == nil {
			deliver(pkt)
			continue
		}
		for _, p := range reorder.Push(pkt) {
			deliver(p)
		}
	}
}

// String для логов
func (e *Element) String() string {
	return fmt.Sprintf("Element(%s)", e.marker)
}
