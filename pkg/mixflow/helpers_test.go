package mixflow

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

type muteCall struct {
	pid   uint32
	muted bool
}

type fakeSessionFinder struct {
	sessions []AppSession

	volumes   map[uint32]float32
	muteCalls []muteCall

	listErr error
	// per-pid injected failures for volume application
	volumeErr map[uint32]error
	muteErr   error
}

func newFakeSessionFinder(sessions ...AppSession) *fakeSessionFinder {
	return &fakeSessionFinder{
		sessions:  sessions,
		volumes:   map[uint32]float32{},
		volumeErr: map[uint32]error{},
	}
}

func (f *fakeSessionFinder) ListSessions() ([]AppSession, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	return f.sessions, nil
}

func (f *fakeSessionFinder) hasSession(pid uint32) bool {
	for _, s := range f.sessions {
		if s.PID == pid {
			return true
		}
	}

	return false
}

func (f *fakeSessionFinder) SetSessionVolume(pid uint32, volume float32) (bool, error) {
	if err := f.volumeErr[pid]; err != nil {
		return false, err
	}

	if !f.hasSession(pid) {
		return false, nil
	}

	f.volumes[pid] = volume

	return true, nil
}

func (f *fakeSessionFinder) SetSessionMute(pid uint32, muted bool) (bool, error) {
	if f.muteErr != nil {
		return false, f.muteErr
	}

	if !f.hasSession(pid) {
		return false, nil
	}

	f.muteCalls = append(f.muteCalls, muteCall{pid: pid, muted: muted})

	return true, nil
}

func (f *fakeSessionFinder) Release() error { return nil }

type fakeDeviceCatalog struct {
	devices    []DeviceInfo
	defaultOut DeviceInfo

	listErr    error
	defaultErr error
}

func (f *fakeDeviceCatalog) ListDevices() ([]DeviceInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	return f.devices, nil
}

func (f *fakeDeviceCatalog) DefaultOutput() (DeviceInfo, error) {
	if f.defaultErr != nil {
		return DeviceInfo{}, f.defaultErr
	}

	return f.defaultOut, nil
}

func (f *fakeDeviceCatalog) Release() error { return nil }

type fakePolicy struct {
	err     error
	applied []DeviceInfo
}

func (f *fakePolicy) SetProcessDefault(pid uint32, device DeviceInfo) error {
	if f.err != nil {
		return f.err
	}

	f.applied = append(f.applied, device)

	return nil
}

func newTestRouter(sessions SessionFinder, devices DeviceCatalog, policy policyConfigurator) *Router {
	return newRouter(zap.NewNop().Sugar(), devices, sessions, policy, func() time.Duration { return 0 })
}

func newTestEngine(t *testing.T, dir string, sessions SessionFinder, devices DeviceCatalog, policy policyConfigurator) *Engine {
	t.Helper()

	logger := zap.NewNop().Sugar()
	store := newStateStore(logger, dir)
	router := newRouter(logger, devices, sessions, policy, func() time.Duration { return 0 })

	return NewEngine(logger, store, sessions, devices, router)
}

func outputDevice(name string, index int) DeviceInfo {
	return DeviceInfo{
		ID:      deviceID(name, DeviceOutput, index),
		Name:    name,
		Kind:    DeviceOutput,
		Backend: "fake",
	}
}
