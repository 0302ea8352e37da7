package mixflow

import (
	"fmt"

	"github.com/diegosz/go-wca/pkg/wca"
	"github.com/go-ole/go-ole"
	"go.uber.org/zap"
)

// needed for session volume/mute actions to successfully notify other
// audio consumers
const randomGUID = "{8e9d5b2f-1c6a-4f03-9d8b-52b17e3f6a41}"

// wcaSessionFinder queries WASAPI for per-process sessions. It holds no COM
// state between calls: every operation brackets its own environment and
// re-enumerates, so the view can never go stale.
type wcaSessionFinder struct {
	logger   *zap.SugaredLogger
	eventCtx *ole.GUID
}

func newSessionFinder(logger *zap.SugaredLogger) (SessionFinder, error) {
	sf := &wcaSessionFinder{
		logger:   logger.Named("session_finder"),
		eventCtx: ole.NewGUID(randomGUID),
	}

	sf.logger.Debug("Created WCA session finder instance")

	return sf, nil
}

func (sf *wcaSessionFinder) ListSessions() ([]AppSession, error) {
	uninitialize, err := initializeCOM()
	if err != nil {
		sf.logger.Warnw("Failed to initialize COM for session enumeration", "error", err)
		return nil, err
	}
	defer uninitialize()

	enumerator, err := createDeviceEnumerator()
	if err != nil {
		sf.logger.Warnw("Failed to create device enumerator", "error", err)
		return nil, err
	}
	defer enumerator.Release()

	sessions := []AppSession{}
	seen := map[uint32]bool{}

	err = sf.forEachSession(enumerator, func(handle *sessionHandle) (bool, error) {
		// deduplicate by pid: a process with sessions on multiple
		// endpoints is reported once, first occurrence wins
		if seen[handle.pid] {
			return false, nil
		}

		volume, err := handle.Volume()
		if err != nil {
			return false, err
		}

		muted, err := handle.Muted()
		if err != nil {
			return false, err
		}

		displayName := handle.DisplayName()
		if displayName == "" {
			displayName = fallbackDisplayName(handle.pid)
		}

		seen[handle.pid] = true
		sessions = append(sessions, AppSession{
			PID:         handle.pid,
			DisplayName: displayName,
			ProcessName: resolveProcessName(handle.pid),
			Volume:      volume,
			Muted:       muted,
		})

		return false, nil
	})
	if err != nil {
		sf.logger.Warnw("Failed to enumerate audio sessions", "error", err)
		return nil, fmt.Errorf("enumerate audio sessions: %w", err)
	}

	sf.logger.Debugw("Enumerated audio sessions", "count", len(sessions))

	return sessions, nil
}

func (sf *wcaSessionFinder) SetSessionVolume(pid uint32, volume float32) (bool, error) {
	return sf.withSessionForPID(pid, func(handle *sessionHandle) error {
		return handle.SetVolume(volume)
	})
}

func (sf *wcaSessionFinder) SetSessionMute(pid uint32, muted bool) (bool, error) {
	return sf.withSessionForPID(pid, func(handle *sessionHandle) error {
		return handle.SetMute(muted)
	})
}

func (sf *wcaSessionFinder) Release() error {
	// nothing held between calls
	sf.logger.Debug("Released WCA session finder instance")
	return nil
}

// withSessionForPID re-enumerates all endpoints and applies fn to the first
// session whose pid matches. Returns false when no session matched - the
// process simply has no active audio.
func (sf *wcaSessionFinder) withSessionForPID(pid uint32, fn func(*sessionHandle) error) (bool, error) {
	uninitialize, err := initializeCOM()
	if err != nil {
		sf.logger.Warnw("Failed to initialize COM for session lookup", "error", err)
		return false, err
	}
	defer uninitialize()

	enumerator, err := createDeviceEnumerator()
	if err != nil {
		sf.logger.Warnw("Failed to create device enumerator", "error", err)
		return false, err
	}
	defer enumerator.Release()

	found := false

	err = sf.forEachSession(enumerator, func(handle *sessionHandle) (bool, error) {
		if handle.pid != pid {
			return false, nil
		}

		found = true

		return true, fn(handle)
	})
	if err != nil {
		return false, fmt.Errorf("apply to session of pid %d: %w", pid, err)
	}

	return found, nil
}

// forEachSession walks every session on every active output endpoint. The
// visitor returns stop to end the walk early; any visitor or enumeration
// error aborts the whole walk - no silent partial results.
func (sf *wcaSessionFinder) forEachSession(
	enumerator *wca.IMMDeviceEnumerator,
	visit func(*sessionHandle) (bool, error),
) error {
	var deviceCollection *wca.IMMDeviceCollection

	if err := enumerator.EnumAudioEndpoints(wca.ERender, wca.DEVICE_STATE_ACTIVE, &deviceCollection); err != nil {
		return fmt.Errorf("enumerate active audio endpoints: %w", err)
	}
	defer deviceCollection.Release()

	var deviceCount uint32

	if err := deviceCollection.GetCount(&deviceCount); err != nil {
		return fmt.Errorf("get device count from device collection: %w", err)
	}

	for deviceIdx := uint32(0); deviceIdx < deviceCount; deviceIdx++ {
		var endpoint *wca.IMMDevice

		if err := deviceCollection.Item(deviceIdx, &endpoint); err != nil {
			return fmt.Errorf("get device %d from device collection: %w", deviceIdx, err)
		}

		stop, err := sf.visitEndpointSessions(endpoint, visit)
		endpoint.Release()

		if err != nil {
			return fmt.Errorf("visit device %d sessions: %w", deviceIdx, err)
		}

		if stop {
			return nil
		}
	}

	return nil
}

func (sf *wcaSessionFinder) visitEndpointSessions(
	endpoint *wca.IMMDevice,
	visit func(*sessionHandle) (bool, error),
) (bool, error) {
	var audioSessionManager2 *wca.IAudioSessionManager2

	if err := endpoint.Activate(
		wca.IID_IAudioSessionManager2,
		wca.CLSCTX_ALL,
		nil,
		&audioSessionManager2,
	); err != nil {
		return false, fmt.Errorf("activate endpoint as IAudioSessionManager2: %w", err)
	}
	defer audioSessionManager2.Release()

	var sessionEnumerator *wca.IAudioSessionEnumerator

	if err := audioSessionManager2.GetSessionEnumerator(&sessionEnumerator); err != nil {
		return false, fmt.Errorf("get session enumerator: %w", err)
	}
	defer sessionEnumerator.Release()

	var sessionCount int

	if err := sessionEnumerator.GetCount(&sessionCount); err != nil {
		return false, fmt.Errorf("get session count: %w", err)
	}

	for sessionIdx := 0; sessionIdx < sessionCount; sessionIdx++ {
		var audioSessionControl *wca.IAudioSessionControl

		if err := sessionEnumerator.GetSession(sessionIdx, &audioSessionControl); err != nil {
			return false, fmt.Errorf("get session %d from enumerator: %w", sessionIdx, err)
		}

		handle, skip, err := newSessionHandle(audioSessionControl, sf.eventCtx)
		if err != nil {
			return false, fmt.Errorf("wrap session %d: %w", sessionIdx, err)
		}

		if skip {
			continue
		}

		stop, err := visit(handle)
		handle.Release()

		if err != nil {
			return false, err
		}

		if stop {
			return true, nil
		}
	}

	return false, nil
}
