package mixflow

import (
	"fmt"
	"net"
	"strconv"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

// full volume in PulseAudio's integer scale
const pulseVolumeNorm = 0x10000

// paSessionFinder queries the PulseAudio native protocol for sink inputs,
// the per-process sessions of this backend. Sink inputs carry their owning
// pid in their property list.
type paSessionFinder struct {
	logger *zap.SugaredLogger

	client *proto.Client
	conn   net.Conn
}

func newSessionFinder(logger *zap.SugaredLogger) (SessionFinder, error) {
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

	sf := &paSessionFinder{
		logger: logger.Named("session_finder"),
		client: client,
		conn:   conn,
	}

	sf.logger.Debug("Created PA session finder instance")

	return sf, nil
}

func (sf *paSessionFinder) ListSessions() ([]AppSession, error) {
	request := proto.GetSinkInputInfoList{}
	reply := proto.GetSinkInputInfoListReply{}

	if err := sf.client.Request(&request, &reply); err != nil {
		sf.logger.Warnw("Failed to get sink input list", "error", err)
		return nil, fmt.Errorf("get sink input list: %w", err)
	}

	sessions := []AppSession{}
	seen := map[uint32]bool{}

	for _, info := range reply {
		pid, ok := sinkInputPID(info)
		if !ok || pid == 0 || seen[pid] {
			continue
		}

		var volume float32
		if len(info.ChannelVolumes) > 0 {
			volume = float32(info.ChannelVolumes[0]) / pulseVolumeNorm
		}

		displayName := sf.sinkInputProperty(info, "application.name")
		if displayName == "" {
			displayName = fallbackDisplayName(pid)
		}

		processName := sf.sinkInputProperty(info, "application.process.binary")
		if processName == "" {
			processName = resolveProcessName(pid)
		}

		seen[pid] = true
		sessions = append(sessions, AppSession{
			PID:         pid,
			DisplayName: displayName,
			ProcessName: processName,
			Volume:      volume,
			Muted:       info.Muted,
		})
	}

	sf.logger.Debugw("Enumerated audio sessions", "count", len(sessions))

	return sessions, nil
}

func (sf *paSessionFinder) SetSessionVolume(pid uint32, volume float32) (bool, error) {
	info, found, err := sf.sinkInputForPID(pid)
	if err != nil || !found {
		return false, err
	}

	level := uint32(volume * pulseVolumeNorm)
	channelVolumes := make(proto.ChannelVolumes, len(info.ChannelVolumes))
	for i := range channelVolumes {
		channelVolumes[i] = level
	}

	request := proto.SetSinkInputVolume{
		SinkInputIndex: info.SinkInputIndex,
		ChannelVolumes: channelVolumes,
	}

	if err := sf.client.Request(&request, nil); err != nil {
		return false, fmt.Errorf("set sink input volume: %w", err)
	}

	return true, nil
}

func (sf *paSessionFinder) SetSessionMute(pid uint32, muted bool) (bool, error) {
	info, found, err := sf.sinkInputForPID(pid)
	if err != nil || !found {
		return false, err
	}

	request := proto.SetSinkInputMute{
		SinkInputIndex: info.SinkInputIndex,
		Mute:           muted,
	}

	if err := sf.client.Request(&request, nil); err != nil {
		return false, fmt.Errorf("set sink input mute: %w", err)
	}

	return true, nil
}

func (sf *paSessionFinder) Release() error {
	if err := sf.conn.Close(); err != nil {
		sf.logger.Warnw("Failed to close PulseAudio connection", "error", err)
		return fmt.Errorf("close PulseAudio connection: %w", err)
	}

	sf.logger.Debug("Released PA session finder instance")

	return nil
}

func (sf *paSessionFinder) sinkInputForPID(pid uint32) (*proto.GetSinkInputInfoReply, bool, error) {
	request := proto.GetSinkInputInfoList{}
	reply := proto.GetSinkInputInfoListReply{}

	if err := sf.client.Request(&request, &reply); err != nil {
		return nil, false, fmt.Errorf("get sink input list: %w", err)
	}

	for _, info := range reply {
		if infoPID, ok := sinkInputPID(info); ok && infoPID == pid {
			return info, true, nil
		}
	}

	return nil, false, nil
}

func (sf *paSessionFinder) sinkInputProperty(info *proto.GetSinkInputInfoReply, key string) string {
	value, ok := info.Properties[key]
	if !ok {
		return ""
	}

	return value.String()
}

func sinkInputPID(info *proto.GetSinkInputInfoReply) (uint32, bool) {
	value, ok := info.Properties["application.process.id"]
	if !ok {
		return 0, false
	}

	pid, err := strconv.ParseUint(value.String(), 10, 32)
	if err != nil {
		return 0, false
	}

	return uint32(pid), true
}
