package mixflow

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *StateStore {
	t.Helper()
	return newStateStore(zap.NewNop().Sugar(), t.TempDir())
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	state := store.Load()
	if len(state.routes) != 0 || len(state.volumes) != 0 || len(state.appCategories) != 0 {
		t.Fatalf("Load from missing file returned non-empty state: %+v", state)
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	store := newTestStore(t)

	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	state := store.Load()
	if len(state.routes) != 0 || len(state.volumes) != 0 || len(state.appCategories) != 0 {
		t.Fatalf("Load from corrupt file returned non-empty state: %+v", state)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	id := deviceID("Speakers", DeviceOutput, 1)

	state := newMixerState()
	state.routes[StreamGame] = &id
	state.routes[StreamVoice] = nil
	state.volumes[StreamMusic] = 0.25
	state.appCategories[42] = StreamGame

	store.Save(state)

	loaded := store.Load()

	if got := loaded.routes[StreamGame]; got == nil || *got != id {
		t.Fatalf("routes[game] = %v, want %q", got, id)
	}

	if got, ok := loaded.routes[StreamVoice]; !ok || got != nil {
		t.Fatalf("routes[voice] = %v (present=%v), want explicit nil", got, ok)
	}

	if got := loaded.volumes[StreamMusic]; got != float32(0.25) {
		t.Fatalf("volumes[music] = %v, want 0.25", got)
	}

	if got := loaded.appCategories[42]; got != StreamGame {
		t.Fatalf("appCategories[42] = %q, want %q", got, StreamGame)
	}
}

func TestStoreLoadDropsUnknownStreams(t *testing.T) {
	store := newTestStore(t)

	doc := `{
  "routes": {"game": "Speakers::output#0", "podcast": "Speakers::output#0"},
  "volumes": {"voice": 0.5, "podcast": 0.5},
  "app_categories": {"10": "music", "20": "podcast"}
}`

	if err := os.WriteFile(store.Path(), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	state := store.Load()

	if _, ok := state.routes[StreamID("podcast")]; ok {
		t.Fatal("route for unknown stream survived Load")
	}

	if _, ok := state.routes[StreamGame]; !ok {
		t.Fatal("valid route dropped alongside the unknown one")
	}

	if got := state.volumes[StreamVoice]; got != float32(0.5) {
		t.Fatalf("volumes[voice] = %v, want 0.5", got)
	}

	if got := state.appCategories[10]; got != StreamMusic {
		t.Fatalf("appCategories[10] = %q, want %q", got, StreamMusic)
	}

	if _, ok := state.appCategories[20]; ok {
		t.Fatal("category for unknown stream survived Load")
	}
}

func TestStoreLoadClampsVolumes(t *testing.T) {
	store := newTestStore(t)

	doc := `{"volumes": {"game": 3.5, "voice": -1}}`
	if err := os.WriteFile(store.Path(), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	state := store.Load()

	if got := state.volumes[StreamGame]; got != 1.0 {
		t.Fatalf("volumes[game] = %v, want clamped 1.0", got)
	}

	if got := state.volumes[StreamVoice]; got != 0 {
		t.Fatalf("volumes[voice] = %v, want clamped 0", got)
	}
}

func TestStoreSaveCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	store := newStateStore(zap.NewNop().Sugar(), dir)

	store.Save(newMixerState())

	if _, err := os.Stat(store.Path()); err != nil {
		t.Fatalf("state file not written under a fresh directory: %v", err)
	}
}
