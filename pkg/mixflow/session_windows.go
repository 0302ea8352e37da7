package mixflow

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/diegosz/go-wca/pkg/wca"
	"github.com/go-ole/go-ole"
)

// initializeCOM brackets a single OS audio call: every function touching
// the audio subsystem acquires the environment at the top and releases it
// on every exit path via the returned func. Repeated per-thread
// initialization is fine; E_FALSE just means the call was redundant and
// still needs its matching uninitialize.
func initializeCOM() (func(), error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		const eFalse = 1
		oleError := &ole.OleError{}

		if !errors.As(err, &oleError) || oleError.Code() != eFalse {
			return nil, fmt.Errorf("call CoInitializeEx: %w", err)
		}
	}

	return ole.CoUninitialize, nil
}

func createDeviceEnumerator() (*wca.IMMDeviceEnumerator, error) {
	var enumerator *wca.IMMDeviceEnumerator

	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&enumerator,
	); err != nil {
		return nil, fmt.Errorf("call CoCreateInstance: %w", err)
	}

	return enumerator, nil
}

// sessionHandle exposes the union of per-session capabilities the engine
// needs - pid, volume, mute, display name - over one WASAPI session,
// instead of handing callers the separate COM interface views.
type sessionHandle struct {
	pid      uint32
	control  *wca.IAudioSessionControl
	control2 *wca.IAudioSessionControl2
	volume   *wca.ISimpleAudioVolume
	eventCtx *ole.GUID
}

// newSessionHandle wraps an IAudioSessionControl, resolving its pid and
// volume interfaces. skip is true for sessions the directory excludes
// (system sounds, pid 0); err aborts the enclosing enumeration.
func newSessionHandle(control *wca.IAudioSessionControl, eventCtx *ole.GUID) (handle *sessionHandle, skip bool, err error) {
	dispatch, err := control.QueryInterface(wca.IID_IAudioSessionControl2)
	if err != nil {
		control.Release()
		return nil, false, fmt.Errorf("query session's IAudioSessionControl2: %w", err)
	}

	control2 := (*wca.IAudioSessionControl2)(unsafe.Pointer(dispatch))

	var pid uint32

	if err := control2.GetProcessId(&pid); err != nil {
		// the system sounds session errors with the undocumented
		// AUDCLNT_S_NO_CURRENT_PROCESS (0x889000D, 143196173 in decimal);
		// UWP apps hit the same code but still fill in a valid pid
		isSystemSoundsErr := control2.IsSystemSoundsSession()
		if isSystemSoundsErr != nil && !strings.Contains(err.Error(), "143196173") {
			control.Release()
			control2.Release()
			return nil, false, fmt.Errorf("query session's pid: %w", err)
		}
	}

	if pid == 0 {
		control.Release()
		control2.Release()
		return nil, true, nil
	}

	dispatch, err = control2.QueryInterface(wca.IID_ISimpleAudioVolume)
	if err != nil {
		control.Release()
		control2.Release()
		return nil, false, fmt.Errorf("query session's ISimpleAudioVolume: %w", err)
	}

	volume := (*wca.ISimpleAudioVolume)(unsafe.Pointer(dispatch))

	return &sessionHandle{
		pid:      pid,
		control:  control,
		control2: control2,
		volume:   volume,
		eventCtx: eventCtx,
	}, false, nil
}

func (h *sessionHandle) Volume() (float32, error) {
	var level float32

	if err := h.volume.GetMasterVolume(&level); err != nil {
		return 0, fmt.Errorf("get session volume for pid %d: %w", h.pid, err)
	}

	return level, nil
}

func (h *sessionHandle) SetVolume(level float32) error {
	if err := h.volume.SetMasterVolume(level, h.eventCtx); err != nil {
		return fmt.Errorf("set session volume for pid %d: %w", h.pid, err)
	}

	return nil
}

func (h *sessionHandle) Muted() (bool, error) {
	var muted bool

	if err := h.volume.GetMute(&muted); err != nil {
		return false, fmt.Errorf("get session mute for pid %d: %w", h.pid, err)
	}

	return muted, nil
}

func (h *sessionHandle) SetMute(muted bool) error {
	if err := h.volume.SetMute(muted, h.eventCtx); err != nil {
		return fmt.Errorf("set session mute for pid %d: %w", h.pid, err)
	}

	return nil
}

// DisplayName returns the session's display name, which many applications
// leave empty.
func (h *sessionHandle) DisplayName() string {
	var name string

	if err := h.control2.GetDisplayName(&name); err != nil {
		return ""
	}

	return name
}

func (h *sessionHandle) Release() {
	h.volume.Release()
	h.control2.Release()
	h.control.Release()
}
