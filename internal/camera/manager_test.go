package camera

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestManager(t *testing.T, media *fakeMedia) *Manager {
	t.Helper()
	m := NewManager(media)
	if _, err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return m
}

func TestAcquireKeepsSingleLiveStream(t *testing.T) {
	media := &fakeMedia{devices: threeDevices()}
	m := newTestManager(t, media)
	before := len(media.streams)

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := m.Acquire(context.Background(), nil); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	acquired := media.streams[before:]
	if len(acquired) != n {
		t.Fatalf("expected %d streams, got %d", n, len(acquired))
	}
	stopped := 0
	for _, s := range acquired {
		if s.stopped {
			stopped++
		}
	}
	if stopped != n-1 {
		t.Errorf("expected %d stopped streams, got %d", n-1, stopped)
	}
	if media.live() != 1 {
		t.Errorf("expected exactly one live stream, got %d", media.live())
	}
	if m.Session().Stream != acquired[n-1] {
		t.Error("session does not hold the newest stream")
	}
}

func TestAcquireUsesDeviceConstraints(t *testing.T) {
	media := &fakeMedia{devices: threeDevices()}
	m := newTestManager(t, media)

	back := m.Cameras()[1]
	sess, err := m.Acquire(context.Background(), &back)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := media.requests[len(media.requests)-1]
	if c.Video.DeviceID != "b" || c.Video.FacingMode != "environment" {
		t.Errorf("unexpected constraints: %+v", c.Video)
	}
	if sess.DeviceID != "b" {
		t.Errorf("session device = %q, want b", sess.DeviceID)
	}

	// The selected camera is used when no device is passed.
	m.Select(m.Cameras()[0])
	if _, err := m.Acquire(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c = media.requests[len(media.requests)-1]
	if c.Video.DeviceID != "a" || c.Video.FacingMode != "user" {
		t.Errorf("selected camera not used: %+v", c.Video)
	}
}

func TestAcquireFallsBackToPlainConstraints(t *testing.T) {
	media := &fakeMedia{devices: threeDevices()}
	m := newTestManager(t, media)
	media.fail = func(c Constraints) error {
		if !c.Plain() {
			return errors.New("OverconstrainedError: width")
		}
		return nil
	}

	dev := m.Cameras()[2]
	sess, err := m.Acquire(context.Background(), &dev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.Constraints.Plain() {
		t.Error("expected session to use fallback constraints")
	}
	if sess.DeviceID != "" {
		t.Errorf("fallback session should carry no device id, got %q", sess.DeviceID)
	}
}

func TestAcquireFailsAfterSingleFallback(t *testing.T) {
	media := &fakeMedia{devices: threeDevices()}
	m := newTestManager(t, media)
	calls := 0
	media.fail = func(c Constraints) error {
		calls++
		if c.Plain() {
			return errors.New("NotReadableError")
		}
		return ErrPermissionDenied
	}

	_, err := m.Acquire(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrAcquisitionFailed) {
		t.Errorf("expected ErrAcquisitionFailed, got %v", err)
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("original cause should be preserved")
	}
	if !strings.Contains(err.Error(), ErrPermissionDenied.Error()) {
		t.Errorf("message should include original reason: %q", err.Error())
	}
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) || acqErr.Fallback == nil {
		t.Error("fallback cause missing")
	}
	if m.Session() != nil {
		t.Error("no session should remain after failure")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	media := &fakeMedia{devices: threeDevices()}
	m := newTestManager(t, media)

	m.Release()
	if _, err := m.Acquire(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Release()
	m.Release()

	if m.Session() != nil {
		t.Error("session not cleared")
	}
	if media.live() != 0 {
		t.Errorf("expected no live streams, got %d", media.live())
	}
}

func TestSwitchToNext(t *testing.T) {
	media := &fakeMedia{devices: threeDevices()}
	m := newTestManager(t, media)
	cams := m.Cameras()

	m.Select(cams[1])
	next, err := m.SwitchToNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ID != "c" {
		t.Errorf("after B expected C, got %s", next.ID)
	}

	next, err = m.SwitchToNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ID != "a" {
		t.Errorf("after C expected wrap to A, got %s", next.ID)
	}
	if sel, _ := m.Selected(); sel.ID != "a" {
		t.Errorf("selection not updated: %s", sel.ID)
	}

	// No stream was live, so none should have been opened.
	if media.live() != 0 {
		t.Errorf("switch without session opened a stream")
	}
}

func TestSwitchToNextReacquires(t *testing.T) {
	media := &fakeMedia{devices: threeDevices()}
	m := newTestManager(t, media)
	m.Select(m.Cameras()[0])
	if _, err := m.Acquire(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next, err := m.SwitchToNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Session() == nil || m.Session().DeviceID != next.ID {
		t.Errorf("expected live session on %s", next.ID)
	}
	if media.live() != 1 {
		t.Errorf("expected one live stream, got %d", media.live())
	}
}

func TestSwitchToNextInsufficientDevices(t *testing.T) {
	media := &fakeMedia{devices: threeDevices()[:1]}
	m := newTestManager(t, media)

	if _, err := m.SwitchToNext(context.Background()); !errors.Is(err, ErrInsufficientDevices) {
		t.Errorf("expected ErrInsufficientDevices, got %v", err)
	}

	empty := NewManager(&fakeMedia{})
	if _, err := empty.SwitchToNext(context.Background()); !errors.Is(err, ErrInsufficientDevices) {
		t.Errorf("expected ErrInsufficientDevices with no devices, got %v", err)
	}
}
