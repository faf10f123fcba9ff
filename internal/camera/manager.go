package camera

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// StreamSession is the live stream currently owned by a Manager.
type StreamSession struct {
	DeviceID    string
	Constraints Constraints
	Stream      Stream
}

// Manager owns at most one live stream at a time. Acquisition is
// serialised: the previous session is always released before a new stream
// is requested.
type Manager struct {
	media MediaDevices

	mu       sync.Mutex
	cameras  []CameraDevice
	selected *CameraDevice
	session  *StreamSession
}

// NewManager creates a Manager backed by the given platform API.
func NewManager(media MediaDevices) *Manager {
	return &Manager{media: media}
}

// Refresh re-runs enumeration and replaces the known camera set. The
// selection is kept if the selected device is still present.
func (m *Manager) Refresh(ctx context.Context) ([]CameraDevice, error) {
	devices, err := ListCameras(ctx, m.media)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cameras = devices
	if m.selected != nil && indexOf(devices, m.selected.ID) < 0 {
		m.selected = nil
	}
	return append([]CameraDevice(nil), devices...), nil
}

// Cameras returns the last enumerated camera set.
func (m *Manager) Cameras() []CameraDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CameraDevice(nil), m.cameras...)
}

// Select marks dev as the current camera. It does not touch the stream.
func (m *Manager) Select(dev CameraDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = &dev
}

// Selected returns the current camera, if any.
func (m *Manager) Selected() (CameraDevice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == nil {
		return CameraDevice{}, false
	}
	return *m.selected, true
}

// Session returns the live session, or nil.
func (m *Manager) Session() *StreamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Acquire opens a stream for dev, or for the selected camera when dev is
// nil. Any live session is released first. If the preferred constraints
// fail, one retry is made with plain constraints.
func (m *Manager) Acquire(ctx context.Context, dev *CameraDevice) (*StreamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked(ctx, dev)
}

func (m *Manager) acquireLocked(ctx context.Context, dev *CameraDevice) (*StreamSession, error) {
	m.releaseLocked()

	if m.media == nil {
		return nil, ErrNotSupported
	}

	if dev == nil {
		dev = m.selected
	}

	constraints := ConstraintsFor(dev)
	stream, err := m.media.GetUserMedia(ctx, constraints)
	if err != nil {
		log.Warn().Err(err).Str("device", constraints.Video.DeviceID).Msg("Preferred constraints failed, retrying with plain request")

		fallback := PlainConstraints()
		stream, fbErr := m.media.GetUserMedia(ctx, fallback)
		if fbErr != nil {
			return nil, &AcquisitionError{DeviceID: constraints.Video.DeviceID, Err: err, Fallback: fbErr}
		}
		m.session = &StreamSession{Constraints: fallback, Stream: stream}
		log.Info().Str("stream", stream.ID()).Msg("Camera stream acquired with fallback constraints")
		return m.session, nil
	}

	m.session = &StreamSession{DeviceID: constraints.Video.DeviceID, Constraints: constraints, Stream: stream}
	log.Info().Str("stream", stream.ID()).Str("device", constraints.Video.DeviceID).Msg("Camera stream acquired")
	return m.session, nil
}

// Release stops all tracks of the live session. Safe to call when no
// session is active.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	if m.session == nil {
		return
	}
	stopStream(m.session.Stream)
	log.Debug().Str("stream", m.session.Stream.ID()).Msg("Camera stream released")
	m.session = nil
}

// SwitchToNext selects the camera after the current one, wrapping around,
// and re-acquires if a stream was live.
func (m *Manager) SwitchToNext(ctx context.Context) (CameraDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.cameras) < 2 {
		return CameraDevice{}, ErrInsufficientDevices
	}

	current := -1
	if m.selected != nil {
		current = indexOf(m.cameras, m.selected.ID)
	}
	next := m.cameras[(current+1)%len(m.cameras)]
	m.selected = &next

	if m.session != nil {
		if _, err := m.acquireLocked(ctx, &next); err != nil {
			return next, err
		}
	}
	return next, nil
}

func indexOf(devices []CameraDevice, id string) int {
	for i, d := range devices {
		if d.ID == id {
			return i
		}
	}
	return -1
}
