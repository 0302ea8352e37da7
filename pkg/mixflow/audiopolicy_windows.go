package mixflow

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/diegosz/go-wca/pkg/wca"
	"github.com/go-ole/go-ole"
	"go.uber.org/zap"
)

// The audio policy configuration surface is internal to the shell; its
// activation factory frequently refuses callers outside it, which is why
// the policy strategy treats any failure here as "unavailable" rather than
// as an application error.
var IID_IAudioPolicyConfigFactory = ole.NewGUID("{2A59116D-6C4F-45E0-A74F-707E3FEF9258}")

const (
	audioPolicyConfigClass = "Windows.Media.Internal.AudioPolicyConfig"

	// device interface class for MMDEVAPI render endpoints, part of the
	// persisted endpoint path format the factory expects
	mmDeviceRenderGUID = "{e6327cad-dcec-4949-ae8a-991e976a79d2}"
)

type IAudioPolicyConfigFactory struct {
	ole.IUnknown
}

type IAudioPolicyConfigFactoryVtbl struct {
	ole.IUnknownVtbl

	// IInspectable
	GetIids             uintptr
	GetRuntimeClassName uintptr
	GetTrustLevel       uintptr

	// unrelated factory methods preceding the endpoint ones; the layout
	// matches the factory shipped in mmdevapi since Windows 10 1803
	reserved [15]uintptr

	SetPersistedDefaultAudioEndpoint             uintptr
	GetPersistedDefaultAudioEndpoint             uintptr
	ClearAllPersistedApplicationDefaultEndpoints uintptr
}

func (v *IAudioPolicyConfigFactory) VTable() *IAudioPolicyConfigFactoryVtbl {
	return (*IAudioPolicyConfigFactoryVtbl)(unsafe.Pointer(v.RawVTable))
}

func (v *IAudioPolicyConfigFactory) SetPersistedDefaultAudioEndpoint(pid uint32, dataFlow uint32, role uint32, deviceID ole.HString) error {
	hr, _, _ := syscall.SyscallN(
		v.VTable().SetPersistedDefaultAudioEndpoint,
		uintptr(unsafe.Pointer(v)),
		uintptr(pid),
		uintptr(dataFlow),
		uintptr(role),
		uintptr(deviceID),
	)
	if hr != 0 {
		return ole.NewError(hr)
	}

	return nil
}

type wcaPolicyConfig struct {
	logger *zap.SugaredLogger
}

func newPolicyConfigurator(logger *zap.SugaredLogger) policyConfigurator {
	return &wcaPolicyConfig{logger: logger.Named("audiopolicy")}
}

// SetProcessDefault asks the policy config factory to persist device as the
// default render endpoint for pid's sessions.
func (pc *wcaPolicyConfig) SetProcessDefault(pid uint32, device DeviceInfo) error {
	// redundant initialization is fine here
	_ = ole.RoInitialize(1)

	inspectable, err := ole.RoGetActivationFactory(audioPolicyConfigClass, IID_IAudioPolicyConfigFactory)
	if err != nil {
		return fmt.Errorf("activate audio policy config factory: %w", err)
	}

	factory := (*IAudioPolicyConfigFactory)(unsafe.Pointer(inspectable))
	defer factory.Release()

	endpointID, err := pc.endpointIDByName(device.Name)
	if err != nil {
		return err
	}

	persistedPath := fmt.Sprintf(`\\?\SWD#MMDEVAPI#%s#%s`, endpointID, mmDeviceRenderGUID)

	deviceID, err := ole.NewHString(persistedPath)
	if err != nil {
		return fmt.Errorf("create device id hstring: %w", err)
	}
	defer ole.DeleteHString(deviceID)

	// persist for both the console and multimedia roles, like the shell
	for _, role := range []uint32{wca.EConsole, wca.EMultimedia} {
		if err := factory.SetPersistedDefaultAudioEndpoint(pid, wca.ERender, role, deviceID); err != nil {
			return fmt.Errorf("persist default endpoint (role %d): %w", role, err)
		}
	}

	pc.logger.Debugw("Persisted default endpoint for process", "pid", pid, "device", device.ID)

	return nil
}

// endpointIDByName resolves a render endpoint's WASAPI device id from its
// friendly name, the only identity the backend-agnostic catalog exposes.
func (pc *wcaPolicyConfig) endpointIDByName(name string) (string, error) {
	uninitialize, err := initializeCOM()
	if err != nil {
		return "", err
	}
	defer uninitialize()

	enumerator, err := createDeviceEnumerator()
	if err != nil {
		return "", err
	}
	defer enumerator.Release()

	var deviceCollection *wca.IMMDeviceCollection

	if err := enumerator.EnumAudioEndpoints(wca.ERender, wca.DEVICE_STATE_ACTIVE, &deviceCollection); err != nil {
		return "", fmt.Errorf("enumerate active audio endpoints: %w", err)
	}
	defer deviceCollection.Release()

	var deviceCount uint32

	if err := deviceCollection.GetCount(&deviceCount); err != nil {
		return "", fmt.Errorf("get device count from device collection: %w", err)
	}

	for deviceIdx := uint32(0); deviceIdx < deviceCount; deviceIdx++ {
		var endpoint *wca.IMMDevice

		if err := deviceCollection.Item(deviceIdx, &endpoint); err != nil {
			return "", fmt.Errorf("get device %d from device collection: %w", deviceIdx, err)
		}

		friendlyName, err := endpointFriendlyName(endpoint)
		if err != nil {
			endpoint.Release()
			return "", err
		}

		if friendlyName != name {
			endpoint.Release()
			continue
		}

		var endpointID string
		err = endpoint.GetId(&endpointID)
		endpoint.Release()

		if err != nil {
			return "", fmt.Errorf("get endpoint id: %w", err)
		}

		return endpointID, nil
	}

	return "", fmt.Errorf("%w: no render endpoint named %q", ErrDeviceNotFound, name)
}
