package mixflow

import "fmt"

// DeviceKind distinguishes capture devices from render devices.
type DeviceKind string

const (
	DeviceInput  DeviceKind = "input"
	DeviceOutput DeviceKind = "output"
)

// DeviceInfo describes a single audio endpoint as seen by the device
// catalog. ID is stable for the lifetime of the process but not across OS
// restarts or driver re-enumeration - it is derived from the device name,
// its kind and a per-enumeration disambiguation index, so two devices
// sharing a display name remain distinguishable within one run.
type DeviceInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      DeviceKind `json:"kind"`
	IsDefault bool       `json:"is_default"`
	Backend   string     `json:"backend"`
}

// deviceID formats the session-stable identifier for a device, e.g.
// "Speakers::output#1" for the second active output named "Speakers".
func deviceID(name string, kind DeviceKind, index int) string {
	return fmt.Sprintf("%s::%s#%d", name, kind, index)
}

// AppSession is a snapshot of one process's live audio session. It exists
// only while the OS reports a session for that pid and is never persisted.
type AppSession struct {
	PID         uint32  `json:"pid"`
	DisplayName string  `json:"display_name"`
	ProcessName string  `json:"process_name"`
	Volume      float32 `json:"volume"`
	Muted       bool    `json:"muted"`
}
