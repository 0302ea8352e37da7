package mixflow

// DeviceCatalog enumerates the audio endpoints known to the host's audio
// backend. Disambiguation indices inside device ids are scoped to a single
// ListDevices call and are not stable across re-enumeration.
type DeviceCatalog interface {
	ListDevices() ([]DeviceInfo, error)

	// DefaultOutput resolves the system's current default output endpoint.
	DefaultOutput() (DeviceInfo, error)

	Release() error
}
