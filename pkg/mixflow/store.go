package mixflow

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/MixyLabs/mixflow/pkg/mixflow/util"
)

const (
	stateDirName  = "mixflow"
	stateFilename = "state.json"
)

// persistedState is the on-disk shape of the logical state: the sole
// durable artifact. Reloading it reproduces exactly the state that was last
// saved, independent of what the OS session list currently contains.
type persistedState struct {
	Routes        map[StreamID]*string `json:"routes"`
	Volumes       map[StreamID]float32 `json:"volumes"`
	AppCategories map[uint32]StreamID  `json:"app_categories"`
}

// StateStore snapshots the mixer state to a JSON document and restores it
// at startup. Read and write failures are deliberately swallowed: the
// in-memory state stays authoritative for the running process, and a broken
// file only degrades durability across restarts, never current-session
// correctness.
type StateStore struct {
	logger *zap.SugaredLogger
	path   string
}

func newStateStore(logger *zap.SugaredLogger, dir string) *StateStore {
	if dir == "" {
		dir = defaultStateDir()
	}

	s := &StateStore{
		logger: logger.Named("store"),
		path:   filepath.Join(dir, stateFilename),
	}

	s.logger.Debugw("Created state store instance", "path", s.path)

	return s
}

func defaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}

	return filepath.Join(base, stateDirName)
}

// Path returns the location of the persisted state file.
func (s *StateStore) Path() string {
	return s.path
}

// Load reads the persisted state. A missing or corrupt file yields empty
// defaults rather than an error.
func (s *StateStore) Load() mixerState {
	state := newMixerState()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warnw("Failed to read state file, starting from defaults", "error", err)
		}

		return state
	}

	persisted := persistedState{}
	if err := json.Unmarshal(data, &persisted); err != nil {
		s.logger.Warnw("State file is corrupt, starting from defaults", "error", err)
		return state
	}

	// drop entries that refer to streams outside the closed set: the file
	// may have been written by a newer version or edited by hand
	for stream, id := range persisted.Routes {
		if !stream.Valid() {
			s.logger.Warnw("Ignoring route for unknown stream", "stream", stream)
			continue
		}

		state.routes[stream] = id
	}

	for stream, volume := range persisted.Volumes {
		if !stream.Valid() {
			s.logger.Warnw("Ignoring volume for unknown stream", "stream", stream)
			continue
		}

		state.volumes[stream] = clampVolume(volume)
	}

	for pid, stream := range persisted.AppCategories {
		if !stream.Valid() {
			s.logger.Warnw("Ignoring category for unknown stream", "pid", pid, "stream", stream)
			continue
		}

		state.appCategories[pid] = stream
	}

	s.logger.Debugw("Loaded persisted state",
		"routes", len(state.routes),
		"volumes", len(state.volumes),
		"appCategories", len(state.appCategories))

	return state
}

// Save writes a full best-effort overwrite of the state file. The caller
// passes a clone, so no lock is held during file I/O.
func (s *StateStore) Save(state mixerState) {
	persisted := persistedState{
		Routes:        state.routes,
		Volumes:       state.volumes,
		AppCategories: state.appCategories,
	}

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		s.logger.Warnw("Failed to serialize state snapshot", "error", err)
		return
	}

	if err := util.EnsureDirExists(filepath.Dir(s.path)); err != nil {
		s.logger.Warnw("Failed to ensure state directory exists", "error", err)
		return
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Warnw("Failed to write state file", "error", err, "path", s.path)
	}
}
