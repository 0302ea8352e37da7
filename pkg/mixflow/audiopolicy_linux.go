package mixflow

import (
	"fmt"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

// paPolicyConfig implements the policy strategy on PulseAudio, where moving
// a live stream between sinks is actually supported. Each call brackets its
// own connection, mirroring the per-call environment model of the other
// backends.
type paPolicyConfig struct {
	logger *zap.SugaredLogger
}

func newPolicyConfigurator(logger *zap.SugaredLogger) policyConfigurator {
	return &paPolicyConfig{logger: logger.Named("audiopolicy")}
}

func (pc *paPolicyConfig) SetProcessDefault(pid uint32, device DeviceInfo) error {
	client, conn, err := proto.Connect("")
	if err != nil {
		return fmt.Errorf("establish PulseAudio connection: %w", err)
	}
	defer conn.Close()

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString("mixflow"),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := client.Request(&request, &reply); err != nil {
		return err
	}

	inputs := proto.GetSinkInputInfoListReply{}
	if err := client.Request(&proto.GetSinkInputInfoList{}, &inputs); err != nil {
		return fmt.Errorf("get sink input list: %w", err)
	}

	moved := false

	for _, info := range inputs {
		if infoPID, ok := sinkInputPID(info); !ok || infoPID != pid {
			continue
		}

		move := proto.MoveSinkInput{
			SinkInputIndex: info.SinkInputIndex,
			DeviceIndex:    proto.Undefined,
			DeviceName:     device.Name,
		}

		if err := client.Request(&move, nil); err != nil {
			return fmt.Errorf("move sink input %d: %w", info.SinkInputIndex, err)
		}

		moved = true
	}

	if !moved {
		// hand off to the fallback strategies, which report no-session
		return fmt.Errorf("no sink input for pid %d", pid)
	}

	pc.logger.Debugw("Moved sink inputs to device", "pid", pid, "device", device.ID)

	return nil
}
