package mixflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrDeviceNotFound indicates that a requested device id couldn't be
// resolved against the current enumeration. It is deliberately distinct
// from the "process has no session" outcome: callers must be able to tell
// "bad device id" from "nothing to route yet".
var ErrDeviceNotFound = errors.New("audio device not found")

// RouteOutcome is the result of a best-effort reroute attempt. "Applied"
// means no strategy raised a hard error, not that audio audibly moved.
type RouteOutcome int

const (
	RouteApplied RouteOutcome = iota
	RouteNoSession
)

// strategyResult is the tri-state every routing strategy reports.
type strategyResult int

const (
	strategyApplied strategyResult = iota
	strategyUnavailable
	strategyFailed
)

type routeStrategy interface {
	name() string
	apply(pid uint32, device DeviceInfo) (strategyResult, error)
}

// policyConfigurator is the platform hook behind the policy strategy: it
// asks the OS's internal endpoint-policy surface to default a process to an
// endpoint. Expected to be commonly unavailable.
type policyConfigurator interface {
	SetProcessDefault(pid uint32, device DeviceInfo) error
}

// Router moves a process's audio output to a device, best-effort. The OS
// binds a session to the endpoint active at session creation and offers no
// supported way to move it afterwards, so the router walks an ordered
// strategy list and stops at the first one that doesn't report itself
// unavailable.
type Router struct {
	logger     *zap.SugaredLogger
	devices    DeviceCatalog
	strategies []routeStrategy
}

func newRouter(
	logger *zap.SugaredLogger,
	devices DeviceCatalog,
	sessions SessionFinder,
	policy policyConfigurator,
	nudgeDelay func() time.Duration,
) *Router {
	logger = logger.Named("router")

	return &Router{
		logger:  logger,
		devices: devices,
		strategies: []routeStrategy{
			&policyStrategy{logger: logger, policy: policy},
			&nudgeStrategy{logger: logger, sessions: sessions, delay: nudgeDelay},
		},
	}
}

// RerouteProcess attempts to move pid's audio to the device identified by
// deviceID (nil = system default). Returns RouteNoSession when no strategy
// could act because the process has no live session - the normal case for
// a process not currently producing audio.
func (r *Router) RerouteProcess(pid uint32, deviceID *string) (RouteOutcome, error) {
	device, err := r.resolveDevice(deviceID)
	if err != nil {
		return RouteNoSession, err
	}

	for _, strategy := range r.strategies {
		result, err := strategy.apply(pid, device)

		switch result {
		case strategyApplied:
			r.logger.Debugw("Reroute strategy applied",
				"strategy", strategy.name(),
				"pid", pid,
				"device", device.ID)

			return RouteApplied, nil

		case strategyFailed:
			return RouteNoSession, fmt.Errorf("%s strategy for pid %d: %w", strategy.name(), pid, err)
		}

		// unavailable: fall through to the next strategy
	}

	return RouteNoSession, nil
}

// resolveDevice maps a device id (or nil for "system default") to a live
// endpoint. Exact id match wins - the id embeds the disambiguation index -
// with a substring match on output device names as fallback for ids
// persisted before a re-enumeration shifted the indices.
func (r *Router) resolveDevice(deviceID *string) (DeviceInfo, error) {
	if deviceID == nil || *deviceID == "" {
		device, err := r.devices.DefaultOutput()
		if err != nil {
			return DeviceInfo{}, fmt.Errorf("resolve default output device: %w", err)
		}

		return device, nil
	}

	devices, err := r.devices.ListDevices()
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("enumerate devices for route resolution: %w", err)
	}

	for _, device := range devices {
		if device.ID == *deviceID {
			return device, nil
		}
	}

	name := deviceIDName(*deviceID)

	for _, device := range devices {
		if device.Kind == DeviceOutput &&
			strings.Contains(strings.ToLower(device.Name), strings.ToLower(name)) {
			r.logger.Debugw("Resolved device by name fallback",
				"requested", *deviceID,
				"matched", device.ID)

			return device, nil
		}
	}

	return DeviceInfo{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, *deviceID)
}

// deviceIDName strips the "::kind#index" suffix off a device id.
func deviceIDName(id string) string {
	if idx := strings.Index(id, "::"); idx >= 0 {
		return id[:idx]
	}

	return id
}

// policyStrategy asks the OS's internal (undocumented) endpoint-policy
// configuration surface to default the process to the chosen endpoint.
// Failure here is not an application error, only a fallback trigger, so it
// is logged at debug level.
type policyStrategy struct {
	logger *zap.SugaredLogger
	policy policyConfigurator
}

func (s *policyStrategy) name() string { return "policy" }

func (s *policyStrategy) apply(pid uint32, device DeviceInfo) (strategyResult, error) {
	if err := s.policy.SetProcessDefault(pid, device); err != nil {
		s.logger.Debugw("Policy strategy unavailable, falling back",
			"pid", pid,
			"device", device.ID,
			"error", err)

		return strategyUnavailable, nil
	}

	return strategyApplied, nil
}

// nudgeStrategy toggles the session's mute state off -> on -> off with a
// short delay, hoping the application re-negotiates its audio device. This
// is explicitly speculative: nothing guarantees the application observes or
// reacts to the toggle.
type nudgeStrategy struct {
	logger   *zap.SugaredLogger
	sessions SessionFinder
	delay    func() time.Duration
}

func (s *nudgeStrategy) name() string { return "session-nudge" }

func (s *nudgeStrategy) apply(pid uint32, device DeviceInfo) (strategyResult, error) {
	found, err := s.sessions.SetSessionMute(pid, false)
	if err != nil {
		return strategyFailed, fmt.Errorf("unmute session: %w", err)
	}

	if !found {
		return strategyUnavailable, nil
	}

	time.Sleep(s.delay())

	if _, err := s.sessions.SetSessionMute(pid, true); err != nil {
		return strategyFailed, fmt.Errorf("mute session: %w", err)
	}

	time.Sleep(s.delay())

	if _, err := s.sessions.SetSessionMute(pid, false); err != nil {
		return strategyFailed, fmt.Errorf("unmute session after nudge: %w", err)
	}

	return strategyApplied, nil
}
