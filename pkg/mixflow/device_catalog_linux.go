package mixflow

import (
	"fmt"
	"net"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

const backendPulse = "PulseAudio"

// paDeviceCatalog lists PulseAudio sinks (outputs) and sources (inputs).
type paDeviceCatalog struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn
}

func newDeviceCatalog(logger *zap.SugaredLogger) (DeviceCatalog, error) {
	client, conn, err := proto.Connect("")
	if err != nil {
		logger.Warnw("Failed to establish PulseAudio connection", "error", err)
		return nil, fmt.Errorf("establish PulseAudio connection: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("mixflow"),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		_ = conn.Close()
		return nil, err
	}

	dc := &paDeviceCatalog{
		logger: logger.Named("device_catalog"),
		client: client,
		conn:   conn,
	}

	dc.logger.Debug("Created PA device catalog instance")

	return dc, nil
}

func (dc *paDeviceCatalog) ListDevices() ([]DeviceInfo, error) {
	defaultSink, err := dc.defaultSinkName()
	if err != nil {
		dc.logger.Warnw("Failed to resolve default sink, no device will be flagged default", "error", err)
		defaultSink = ""
	}

	devices := []DeviceInfo{}
	seen := map[string]int{}

	sinks := proto.GetSinkInfoListReply{}
	if err := dc.client.Request(&proto.GetSinkInfoList{}, &sinks); err != nil {
		return nil, fmt.Errorf("get sink list: %w", err)
	}

	for _, info := range sinks {
		devices = append(devices, dc.describeDevice(info.SinkName, DeviceOutput, info.SinkName == defaultSink, seen))
	}

	sources := proto.GetSourceInfoListReply{}
	if err := dc.client.Request(&proto.GetSourceInfoList{}, &sources); err != nil {
		return nil, fmt.Errorf("get source list: %w", err)
	}

	for _, info := range sources {
		devices = append(devices, dc.describeDevice(info.SourceName, DeviceInput, false, seen))
	}

	dc.logger.Debugw("Enumerated audio devices", "count", len(devices))

	return devices, nil
}

func (dc *paDeviceCatalog) DefaultOutput() (DeviceInfo, error) {
	name, err := dc.defaultSinkName()
	if err != nil {
		return DeviceInfo{}, err
	}

	return DeviceInfo{
		ID:        deviceID(name, DeviceOutput, 0),
		Name:      name,
		Kind:      DeviceOutput,
		IsDefault: true,
		Backend:   backendPulse,
	}, nil
}

func (dc *paDeviceCatalog) Release() error {
	if err := dc.conn.Close(); err != nil {
		dc.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	dc.logger.Debug("Released PA device catalog instance")

	return nil
}

func (dc *paDeviceCatalog) defaultSinkName() (string, error) {
	reply := proto.GetServerInfoReply{}

	if err := dc.client.Request(&proto.GetServerInfo{}, &reply); err != nil {
		return "", fmt.Errorf("get server info: %w", err)
	}

	return reply.DefaultSinkName, nil
}

func (dc *paDeviceCatalog) describeDevice(name string, kind DeviceKind, isDefault bool, seen map[string]int) DeviceInfo {
	key := name + "/" + string(kind)
	index := seen[key]
	seen[key] = index + 1

	return DeviceInfo{
		ID:        deviceID(name, kind, index),
		Name:      name,
		Kind:      kind,
		IsDefault: isDefault,
		Backend:   backendPulse,
	}
}
