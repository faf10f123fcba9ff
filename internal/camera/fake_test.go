package camera

import (
	"context"
	"fmt"
	"sync"
)

// fakeMedia is an in-memory MediaDevices that records every stream it hands out.
type fakeMedia struct {
	mu sync.Mutex

	devices []DeviceInfo
	enumErr error

	// fail decides whether a GetUserMedia call should fail.
	fail func(c Constraints) error

	requests []Constraints
	streams  []*fakeStream
}

func (f *fakeMedia) EnumerateDevices(ctx context.Context) ([]DeviceInfo, error) {
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	return f.devices, nil
}

func (f *fakeMedia) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, c)
	if f.fail != nil {
		if err := f.fail(c); err != nil {
			return nil, err
		}
	}
	s := &fakeStream{id: fmt.Sprintf("stream-%d", len(f.streams)+1)}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeMedia) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.streams {
		if !s.stopped {
			n++
		}
	}
	return n
}

type fakeStream struct {
	id      string
	stopped bool
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Tracks() []Track { return []Track{fakeTrack{s}} }

type fakeTrack struct{ s *fakeStream }

func (t fakeTrack) Stop() { t.s.stopped = true }

func threeDevices() []DeviceInfo {
	return []DeviceInfo{
		{DeviceID: "a", Label: "Front Camera", Kind: KindVideoInput},
		{DeviceID: "b", Label: "Back Camera", Kind: KindVideoInput},
		{DeviceID: "c", Label: "USB Capture", Kind: KindVideoInput},
	}
}
