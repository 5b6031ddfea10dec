package media

import (
	"sync"

	"github.com/google/uuid"
)

// Stream упорядоченный набор треков
type Stream struct {
	id string

	mu     sync.RWMutex
	tracks []*Track
}

// NewStream создает поток из треков
func NewStream(tracks ...*Track) *Stream {
	s := &Stream{id: uuid.NewString()}
	for _, track := range tracks {
		if track != nil {
			s.tracks = append(s.tracks, track)
		}
	}
	return s
}

// NewStreamWithTrack создает новый поток с единственным треком
func NewStreamWithTrack(track *Track) *Stream {
	return NewStream(track)
}

func (s *Stream) ID() string { return s.id }

// AddTrack добавляет трек, повторное добавление игнорируется
func (s *Stream) AddTrack(track *Track) {
	if track == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tracks {
		if existing == track {
			return
		}
	}
	s.tracks = append(s.tracks, track)
}

// Tracks копия списка треков
func (s *Stream) Tracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) AudioTracks() []*Track { return s.tracksOfKind(KindAudio) }
func (s *Stream) VideoTracks() []*Track { return s.tracksOfKind(KindVideo) }

// HasKind true, если в потоке есть трек указанного типа
func (s *Stream) HasKind(kind Kind) bool {
	return len(s.tracksOfKind(kind)) > 0
}

func (s *Stream) tracksOfKind(kind Kind) []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Track
	for _, track := range s.tracks {
		if track.Kind() == kind {
			out = append(out, track)
		}
	}
	return out
}

// AllTracksEnded true, если все треки завершены. Пустой поток считается завершенным.
func (s *Stream) AllTracksEnded() bool {
	for _, track := range s.Tracks() {
		if !track.Ended() {
			return false
		}
	}
	return true
}

// Stop завершает все треки потока
func (s *Stream) Stop() {
	for _, track := range s.Tracks() {
		track.Stop()
	}
}

// OnAllTracksEnded вызывает fn один раз, когда завершится последний трек.
// Треки, добавленные после вызова, не учитываются.
func (s *Stream) OnAllTracksEnded(fn func()) {
	if fn == nil {
		return
	}
	var once sync.Once
	fire := func() { once.Do(fn) }

	tracks := s.Tracks()
	if len(tracks) == 0 {
		fire()
		return
	}
	for _, track := range tracks {
		track.OnEnded(func(*Track) {
			for _, other := range tracks {
				if !other.Ended() {
					return
				}
			}
			fire()
		})
	}
}
