package mixflow

import (
	"sort"

	"go.uber.org/zap"
)

// Engine owns the logical mixer state and applies user intent to the live
// OS audio subsystem. All operations are synchronous; they serialize only
// on the state container's lock, never on OS calls. The logical mutation
// (route/category/volume table update) always wins: enacting it against the
// ephemeral session list is best-effort and partial failures are logged,
// not surfaced.
type Engine struct {
	logger *zap.SugaredLogger

	state *stateContainer
	store *StateStore

	sessions SessionFinder
	devices  DeviceCatalog
	router   *Router

	// invoked after a stream volume was changed successfully (used for the
	// audio flyout); may be nil
	onStreamVolume func()
}

func NewEngine(
	logger *zap.SugaredLogger,
	store *StateStore,
	sessions SessionFinder,
	devices DeviceCatalog,
	router *Router,
) *Engine {
	logger = logger.Named("engine")

	e := &Engine{
		logger:   logger,
		state:    newStateContainer(store.Load()),
		store:    store,
		sessions: sessions,
		devices:  devices,
		router:   router,
	}

	logger.Debug("Created engine instance")

	return e
}

// ListAudioDevices enumerates all active endpoints. Enumeration failure is
// logged and yields an empty list, mirroring the catalog's best-effort role
// in the UI.
func (e *Engine) ListAudioDevices() []DeviceInfo {
	devices, err := e.devices.ListDevices()
	if err != nil {
		e.logger.Warnw("Failed to list audio devices", "error", err)
		return nil
	}

	return devices
}

// ListAudioApps enumerates the deduplicated per-process session list. This
// is the one listing call that surfaces a hard error: if the audio
// subsystem can't be queried, the UI needs to know.
func (e *Engine) ListAudioApps() ([]AppSession, error) {
	return e.sessions.ListSessions()
}

// GetRoutes returns the current stream -> device id mapping. A nil device
// id means "system default". Streams never routed are absent.
func (e *Engine) GetRoutes() map[StreamID]*string {
	return e.state.snapshot().routes
}

// SetRoute updates a stream's target device and persists, then re-routes
// every process currently categorized under the stream. Per-process
// rerouting errors are logged but never fail the call: the route mutation
// itself already succeeded.
func (e *Engine) SetRoute(stream StreamID, deviceID *string) bool {
	if !stream.Valid() {
		e.logger.Warnw("Refusing to set route for unknown stream", "stream", stream)
		return false
	}

	var pids []uint32

	snapshot := e.state.update(func(s *mixerState) {
		if deviceID == nil {
			s.routes[stream] = nil
		} else {
			id := *deviceID
			s.routes[stream] = &id
		}

		pids = pidsForStream(s, stream)
	})

	e.store.Save(snapshot)

	for _, pid := range pids {
		outcome, err := e.router.RerouteProcess(pid, deviceID)
		if err != nil {
			e.logger.Warnw("Failed to reroute process after route change",
				"pid", pid,
				"stream", stream,
				"error", err)

			continue
		}

		if outcome == RouteNoSession {
			e.logger.Debugw("Process has no live session, nothing to reroute", "pid", pid)
		}
	}

	return true
}

// GetAppCategories returns the persisted pid -> stream assignments,
// including pids that no longer have a live session.
func (e *Engine) GetAppCategories() map[uint32]StreamID {
	return e.state.snapshot().appCategories
}

// SetAppCategory assigns a process to a stream, persists, and immediately
// attempts to route that one process to the stream's configured device. A
// "no live session" outcome from the router is the normal case for a
// process not currently producing audio and does not fail the call.
func (e *Engine) SetAppCategory(pid uint32, stream StreamID) bool {
	if !stream.Valid() {
		e.logger.Warnw("Refusing to categorize under unknown stream", "pid", pid, "stream", stream)
		return false
	}

	var routed *string

	snapshot := e.state.update(func(s *mixerState) {
		s.appCategories[pid] = stream

		if id := s.routes[stream]; id != nil {
			v := *id
			routed = &v
		}
	})

	e.store.Save(snapshot)

	outcome, err := e.router.RerouteProcess(pid, routed)
	if err != nil {
		e.logger.Warnw("Failed to reroute newly categorized process",
			"pid", pid,
			"stream", stream,
			"error", err)
	} else if outcome == RouteNoSession {
		e.logger.Debugw("Newly categorized process has no live session", "pid", pid)
	}

	return true
}

// ClearAppCategory removes a pid's stream assignment. Returns false - and
// does not touch the persisted state - when the pid wasn't categorized.
func (e *Engine) ClearAppCategory(pid uint32) bool {
	removed := false

	snapshot := e.state.update(func(s *mixerState) {
		if _, ok := s.appCategories[pid]; ok {
			delete(s.appCategories, pid)
			removed = true
		}
	})

	if !removed {
		return false
	}

	e.store.Save(snapshot)

	return true
}

// SetAppVolume clamps and applies a volume directly to a pid's live
// session. Returns false when the process has no active session - that's a
// no-op, not an error. Errors mean the audio subsystem itself couldn't be
// queried.
func (e *Engine) SetAppVolume(pid uint32, volume float32) (bool, error) {
	return e.sessions.SetSessionVolume(pid, clampVolume(volume))
}

// SetStreamVolume clamps and stores a stream-level volume, persists, then
// propagates it to every pid currently categorized under the stream. Stale
// category entries for exited processes are tolerated; a failure on one pid
// never aborts propagation to the others.
func (e *Engine) SetStreamVolume(stream StreamID, volume float32) bool {
	if !stream.Valid() {
		e.logger.Warnw("Refusing to set volume for unknown stream", "stream", stream)
		return false
	}

	clamped := clampVolume(volume)

	var pids []uint32

	snapshot := e.state.update(func(s *mixerState) {
		s.volumes[stream] = clamped
		pids = pidsForStream(s, stream)
	})

	e.store.Save(snapshot)

	for _, pid := range pids {
		if _, err := e.sessions.SetSessionVolume(pid, clamped); err != nil {
			e.logger.Warnw("Failed to apply stream volume to process, skipping",
				"pid", pid,
				"stream", stream,
				"error", err)
		}
	}

	if e.onStreamVolume != nil {
		e.onStreamVolume()
	}

	return true
}

// StreamVolume returns the stored volume for a stream, defaulting to 1.0
// when none was ever set.
func (e *Engine) StreamVolume(stream StreamID) float32 {
	snapshot := e.state.snapshot()

	if volume, ok := snapshot.volumes[stream]; ok {
		return volume
	}

	return 1.0
}

// ReapplyRoutes re-routes every categorized process to its stream's
// configured device, without mutating or persisting anything. Used at
// startup to reconcile live sessions with the restored logical state, and
// from the tray for a manual nudge.
func (e *Engine) ReapplyRoutes() {
	snapshot := e.state.snapshot()

	for stream, deviceID := range snapshot.routes {
		for _, pid := range pidsForStream(&snapshot, stream) {
			outcome, err := e.router.RerouteProcess(pid, deviceID)
			if err != nil {
				e.logger.Warnw("Failed to re-apply route",
					"pid", pid,
					"stream", stream,
					"error", err)

				continue
			}

			if outcome == RouteNoSession {
				e.logger.Debugw("No live session while re-applying route", "pid", pid)
			}
		}
	}
}

func pidsForStream(s *mixerState, stream StreamID) []uint32 {
	var pids []uint32

	for pid, assigned := range s.appCategories {
		if assigned == stream {
			pids = append(pids, pid)
		}
	}

	// deterministic fan-out order
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	return pids
}

func clampVolume(volume float32) float32 {
	if volume < 0 {
		return 0
	}

	if volume > 1 {
		return 1
	}

	return volume
}
