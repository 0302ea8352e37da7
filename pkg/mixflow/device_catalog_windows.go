package mixflow

import (
	"fmt"
	"unsafe"

	"github.com/diegosz/go-wca/pkg/wca"
	"go.uber.org/zap"
)

const backendWASAPI = "WASAPI"

// wcaDeviceCatalog enumerates WASAPI endpoints. Like the session finder it
// is stateless between calls; disambiguation indices are assigned per
// enumeration and never persisted.
type wcaDeviceCatalog struct {
	logger *zap.SugaredLogger
}

func newDeviceCatalog(logger *zap.SugaredLogger) (DeviceCatalog, error) {
	dc := &wcaDeviceCatalog{
		logger: logger.Named("device_catalog"),
	}

	dc.logger.Debug("Created WCA device catalog instance")

	return dc, nil
}

func (dc *wcaDeviceCatalog) ListDevices() ([]DeviceInfo, error) {
	uninitialize, err := initializeCOM()
	if err != nil {
		dc.logger.Warnw("Failed to initialize COM for device enumeration", "error", err)
		return nil, err
	}
	defer uninitialize()

	enumerator, err := createDeviceEnumerator()
	if err != nil {
		dc.logger.Warnw("Failed to create device enumerator", "error", err)
		return nil, err
	}
	defer enumerator.Release()

	// the default flag is matched by name: a known fragility when two
	// differently-configured devices share a display name
	defaultOutputName, err := dc.defaultOutputName(enumerator)
	if err != nil {
		dc.logger.Warnw("Failed to resolve default output device, no device will be flagged default", "error", err)
		defaultOutputName = ""
	}

	var deviceCollection *wca.IMMDeviceCollection

	if err := enumerator.EnumAudioEndpoints(wca.EAll, wca.DEVICE_STATE_ACTIVE, &deviceCollection); err != nil {
		return nil, fmt.Errorf("enumerate active audio endpoints: %w", err)
	}
	defer deviceCollection.Release()

	var deviceCount uint32

	if err := deviceCollection.GetCount(&deviceCount); err != nil {
		return nil, fmt.Errorf("get device count from device collection: %w", err)
	}

	devices := []DeviceInfo{}
	seen := map[string]int{}

	for deviceIdx := uint32(0); deviceIdx < deviceCount; deviceIdx++ {
		device, err := dc.describeDevice(deviceCollection, deviceIdx, defaultOutputName, seen)
		if err != nil {
			return nil, err
		}

		devices = append(devices, device)
	}

	dc.logger.Debugw("Enumerated audio devices", "count", len(devices))

	return devices, nil
}

func (dc *wcaDeviceCatalog) DefaultOutput() (DeviceInfo, error) {
	uninitialize, err := initializeCOM()
	if err != nil {
		return DeviceInfo{}, err
	}
	defer uninitialize()

	enumerator, err := createDeviceEnumerator()
	if err != nil {
		return DeviceInfo{}, err
	}
	defer enumerator.Release()

	name, err := dc.defaultOutputName(enumerator)
	if err != nil {
		return DeviceInfo{}, err
	}

	return DeviceInfo{
		ID:        deviceID(name, DeviceOutput, 0),
		Name:      name,
		Kind:      DeviceOutput,
		IsDefault: true,
		Backend:   backendWASAPI,
	}, nil
}

func (dc *wcaDeviceCatalog) Release() error {
	dc.logger.Debug("Released WCA device catalog instance")
	return nil
}

func (dc *wcaDeviceCatalog) defaultOutputName(enumerator *wca.IMMDeviceEnumerator) (string, error) {
	var defaultOutput *wca.IMMDevice

	if err := enumerator.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &defaultOutput); err != nil {
		return "", fmt.Errorf("call GetDefaultAudioEndpoint (out): %w", err)
	}
	defer defaultOutput.Release()

	name, err := endpointFriendlyName(defaultOutput)
	if err != nil {
		return "", err
	}

	return name, nil
}

func (dc *wcaDeviceCatalog) describeDevice(
	deviceCollection *wca.IMMDeviceCollection,
	deviceIdx uint32,
	defaultOutputName string,
	seen map[string]int,
) (DeviceInfo, error) {
	var endpoint *wca.IMMDevice

	if err := deviceCollection.Item(deviceIdx, &endpoint); err != nil {
		return DeviceInfo{}, fmt.Errorf("get device %d from device collection: %w", deviceIdx, err)
	}
	defer endpoint.Release()

	// determine input/output kind via the endpoint's data flow
	dispatch, err := endpoint.QueryInterface(wca.IID_IMMEndpoint)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("query device %d IMMEndpoint: %w", deviceIdx, err)
	}

	endpointType := (*wca.IMMEndpoint)(unsafe.Pointer(dispatch))
	defer endpointType.Release()

	var dataFlow uint32

	if err := endpointType.GetDataFlow(&dataFlow); err != nil {
		return DeviceInfo{}, fmt.Errorf("get device %d data flow: %w", deviceIdx, err)
	}

	kind := DeviceInput
	if dataFlow == wca.ERender {
		kind = DeviceOutput
	}

	name, err := endpointFriendlyName(endpoint)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("get device %d friendly name: %w", deviceIdx, err)
	}

	// devices sharing a name and kind get increasing indices, scoped to
	// this one enumeration
	key := name + "/" + string(kind)
	index := seen[key]
	seen[key] = index + 1

	return DeviceInfo{
		ID:        deviceID(name, kind, index),
		Name:      name,
		Kind:      kind,
		IsDefault: kind == DeviceOutput && name == defaultOutputName,
		Backend:   backendWASAPI,
	}, nil
}

func endpointFriendlyName(endpoint *wca.IMMDevice) (string, error) {
	var propertyStore *wca.IPropertyStore

	if err := endpoint.OpenPropertyStore(wca.STGM_READ, &propertyStore); err != nil {
		return "", fmt.Errorf("open endpoint property store: %w", err)
	}
	defer propertyStore.Release()

	value := &wca.PROPVARIANT{}

	if err := propertyStore.GetValue(&wca.PKEY_Device_FriendlyName, value); err != nil {
		return "", fmt.Errorf("get device friendly name: %w", err)
	}

	// device friendly name i.e. "Headphones (Realtek Audio)"
	return value.String(), nil
}
