// Package session holds the capture client's shared state: the captured and
// cropped photo, a loading flag, one error slot, and a bounded history of
// recently cropped photos that is persisted to a Storage backend.
//
// A State is created once with Open and passed to whatever needs it. All
// methods are safe for concurrent use. Subscribers are notified
// synchronously, outside the lock, after every mutation.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Snapshot is a point-in-time copy of the state.
type Snapshot struct {
	CapturedPhoto   string             `json:"capturedPhoto,omitempty"`
	CroppedPhotoURL string             `json:"croppedPhotoUrl,omitempty"`
	Loading         bool               `json:"isLoading"`
	Err             error              `json:"-"`
	RecentPhotos    []RecentPhotoEntry `json:"recentCroppedPhotos"`
}

// ErrorMessage returns the error slot as text, or "" when it is empty.
func (s Snapshot) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// State is the session state container.
type State struct {
	mu sync.Mutex

	store Storage
	limit int
	now   func() time.Time
	newID func() string

	captured string
	cropped  string
	loading  bool
	err      error
	history  []RecentPhotoEntry

	subs    map[int]func(Snapshot)
	nextSub int
}

// Option configures a State.
type Option func(*State)

// WithHistoryCap sets how many recent photos are kept.
func WithHistoryCap(n int) Option {
	return func(s *State) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithClock replaces the timestamp source for history entries.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// Open creates a State and loads the persisted history once. A nil store
// keeps the history in memory only.
func Open(ctx context.Context, store Storage, opts ...Option) (*State, error) {
	if store == nil {
		store = NewMemoryStorage()
	}
	s := &State{
		store: store,
		limit: DefaultHistoryCap,
		now:   time.Now,
		newID: uuid.NewString,
		subs:  make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}

	history, err := loadHistory(ctx, store, s.limit)
	if err != nil {
		return nil, err
	}
	s.history = history

	log.Debug().Int("entries", len(history)).Int("cap", s.limit).Msg("Session history loaded")
	return s, nil
}

// Subscribe registers fn to receive a snapshot after every mutation and
// returns a function that removes it.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// mutate applies fn under the lock, then notifies subscribers.
func (s *State) mutate(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		CapturedPhoto:   s.captured,
		CroppedPhotoURL: s.cropped,
		Loading:         s.loading,
		Err:             s.err,
		RecentPhotos:    append([]RecentPhotoEntry(nil), s.history...),
	}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SetCapturedPhoto stores the captured image as a data URI.
func (s *State) SetCapturedPhoto(dataURI string) {
	s.mutate(func() { s.captured = dataURI })
}

// SetCroppedPhotoURL stores the URL of the cropped photo.
func (s *State) SetCroppedPhotoURL(url string) {
	s.mutate(func() { s.cropped = url })
}

// SetLoading sets the loading flag.
func (s *State) SetLoading(loading bool) {
	s.mutate(func() { s.loading = loading })
}

// SetError fills the error slot. A nil error clears it.
func (s *State) SetError(err error) {
	s.mutate(func() { s.err = err })
}

// ClearPhoto resets the captured photo, the cropped URL, and the error slot.
func (s *State) ClearPhoto() {
	s.mutate(func() {
		s.captured = ""
		s.cropped = ""
		s.err = nil
	})
}

// AddCroppedPhoto records a cropped photo at the front of the history,
// evicting the oldest entry beyond the cap, and persists the history.
// The in-memory history is updated even when persisting fails.
func (s *State) AddCroppedPhoto(ctx context.Context, dni, nombre, imageURL string) (RecentPhotoEntry, error) {
	entry := RecentPhotoEntry{
		AssociatedID: dni,
		DisplayName:  nombre,
		ImageURL:     imageURL,
	}
	if err := entry.validate(); err != nil {
		log.Error().Str("dni", dni).Bool("has_name", nombre != "").Bool("has_url", imageURL != "").Msg("Incomplete cropped photo")
		return RecentPhotoEntry{}, err
	}

	var saveErr error
	s.mutate(func() {
		entry.ID = s.newID()
		entry.Timestamp = s.now().UTC()
		s.history = prepend(s.history, entry, s.limit)
		saveErr = saveHistory(ctx, s.store, s.history)
	})
	if saveErr != nil {
		log.Warn().Err(saveErr).Msg("Photo history not persisted")
		return entry, saveErr
	}
	return entry, nil
}

// ClearRecentPhotos empties the history and persists the empty list.
func (s *State) ClearRecentPhotos(ctx context.Context) error {
	var saveErr error
	s.mutate(func() {
		s.history = nil
		saveErr = saveHistory(ctx, s.store, s.history)
	})
	return saveErr
}

// Photos returns the history, most recent first.
func (s *State) Photos() []RecentPhotoEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecentPhotoEntry(nil), s.history...)
}

// PhotosCount returns the number of history entries.
func (s *State) PhotosCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Track runs fn with the loading flag set. The error slot is cleared before
// fn runs and set to its error, if any, afterwards.
func (s *State) Track(fn func() error) error {
	s.mutate(func() {
		s.loading = true
		s.err = nil
	})

	err := fn()

	s.mutate(func() {
		s.loading = false
		if err != nil {
			s.err = err
		}
	})
	return err
}
