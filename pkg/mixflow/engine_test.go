package mixflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSetRouteRoundTrip(t *testing.T) {
	speakers := outputDevice("Speakers", 0)
	sessions := newFakeSessionFinder()
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{speakers}, defaultOut: speakers}

	engine := newTestEngine(t, t.TempDir(), sessions, devices, &fakePolicy{})

	id := speakers.ID
	if !engine.SetRoute(StreamGame, &id) {
		t.Fatal("SetRoute returned false for a valid stream")
	}

	routes := engine.GetRoutes()

	got, ok := routes[StreamGame]
	if !ok || got == nil || *got != id {
		t.Fatalf("GetRoutes()[game] = %v, want %q", got, id)
	}

	// explicit nil means "system default", and the entry must stay present
	if !engine.SetRoute(StreamGame, nil) {
		t.Fatal("SetRoute(nil) returned false")
	}

	routes = engine.GetRoutes()

	got, ok = routes[StreamGame]
	if !ok {
		t.Fatal("route entry dropped after routing to system default")
	}

	if got != nil {
		t.Fatalf("GetRoutes()[game] = %q, want nil", *got)
	}
}

func TestSetRouteUnknownStream(t *testing.T) {
	engine := newTestEngine(t, t.TempDir(), newFakeSessionFinder(), &fakeDeviceCatalog{}, &fakePolicy{})

	if engine.SetRoute(StreamID("podcast"), nil) {
		t.Fatal("SetRoute accepted a stream outside the closed set")
	}
}

func TestSetRouteReroutesCategorizedProcesses(t *testing.T) {
	speakers := outputDevice("Speakers", 0)
	headset := outputDevice("Headset", 0)

	sessions := newFakeSessionFinder(
		AppSession{PID: 100, DisplayName: "game.exe"},
		AppSession{PID: 200, DisplayName: "other.exe"},
	)
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{speakers, headset}, defaultOut: speakers}
	policy := &fakePolicy{}

	engine := newTestEngine(t, t.TempDir(), sessions, devices, policy)

	engine.SetAppCategory(100, StreamGame)
	engine.SetAppCategory(200, StreamMusic)

	policy.applied = nil

	id := headset.ID
	if !engine.SetRoute(StreamGame, &id) {
		t.Fatal("SetRoute returned false")
	}

	if len(policy.applied) != 1 {
		t.Fatalf("policy applied to %d processes, want 1", len(policy.applied))
	}

	if policy.applied[0].ID != headset.ID {
		t.Fatalf("policy applied device %q, want %q", policy.applied[0].ID, headset.ID)
	}
}

func TestSetAppCategoryAndClear(t *testing.T) {
	engine := newTestEngine(t, t.TempDir(), newFakeSessionFinder(), &fakeDeviceCatalog{}, &fakePolicy{})

	if !engine.SetAppCategory(42, StreamVoice) {
		t.Fatal("SetAppCategory returned false")
	}

	if got := engine.GetAppCategories()[42]; got != StreamVoice {
		t.Fatalf("GetAppCategories()[42] = %q, want %q", got, StreamVoice)
	}

	if !engine.ClearAppCategory(42) {
		t.Fatal("ClearAppCategory returned false for an assigned pid")
	}

	if _, ok := engine.GetAppCategories()[42]; ok {
		t.Fatal("category still present after ClearAppCategory")
	}

	if engine.ClearAppCategory(42) {
		t.Fatal("ClearAppCategory returned true for an unassigned pid")
	}
}

func TestSetAppCategoryUnknownStream(t *testing.T) {
	engine := newTestEngine(t, t.TempDir(), newFakeSessionFinder(), &fakeDeviceCatalog{}, &fakePolicy{})

	if engine.SetAppCategory(42, StreamID("")) {
		t.Fatal("SetAppCategory accepted an empty stream id")
	}
}

// A process with no live session can still be categorized: the assignment
// is logical state, routing it is best-effort.
func TestSetAppCategoryWithoutLiveSession(t *testing.T) {
	speakers := outputDevice("Speakers", 0)
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{speakers}, defaultOut: speakers}

	engine := newTestEngine(t, t.TempDir(), newFakeSessionFinder(), devices, &fakePolicy{err: errors.New("unsupported")})

	if !engine.SetAppCategory(9999, StreamMusic) {
		t.Fatal("SetAppCategory failed for a process with no live session")
	}
}

func TestClearAppCategoryUnknownPidDoesNotPersist(t *testing.T) {
	dir := t.TempDir()
	engine := newTestEngine(t, dir, newFakeSessionFinder(), &fakeDeviceCatalog{}, &fakePolicy{})

	if engine.ClearAppCategory(7) {
		t.Fatal("ClearAppCategory returned true for a pid never assigned")
	}

	if _, err := os.Stat(filepath.Join(dir, stateFilename)); !os.IsNotExist(err) {
		t.Fatal("state file written by a no-op clear")
	}
}

func TestSetAppVolumeClamps(t *testing.T) {
	sessions := newFakeSessionFinder(AppSession{PID: 42, DisplayName: "music.exe"})
	engine := newTestEngine(t, t.TempDir(), sessions, &fakeDeviceCatalog{}, &fakePolicy{})

	found, err := engine.SetAppVolume(42, 1.5)
	if err != nil || !found {
		t.Fatalf("SetAppVolume(42, 1.5) = (%v, %v), want (true, nil)", found, err)
	}

	if got := sessions.volumes[42]; got != 1.0 {
		t.Fatalf("applied volume %v, want clamped 1.0", got)
	}

	if _, err := engine.SetAppVolume(42, -0.25); err != nil {
		t.Fatalf("SetAppVolume(42, -0.25) error: %v", err)
	}

	if got := sessions.volumes[42]; got != 0 {
		t.Fatalf("applied volume %v, want clamped 0", got)
	}
}

func TestSetAppVolumeNoSession(t *testing.T) {
	engine := newTestEngine(t, t.TempDir(), newFakeSessionFinder(), &fakeDeviceCatalog{}, &fakePolicy{})

	found, err := engine.SetAppVolume(42, 0.5)
	if err != nil {
		t.Fatalf("SetAppVolume error: %v", err)
	}

	if found {
		t.Fatal("SetAppVolume reported a session for an unknown pid")
	}
}

func TestSetStreamVolumePropagates(t *testing.T) {
	sessions := newFakeSessionFinder(
		AppSession{PID: 10, DisplayName: "discord.exe"},
		AppSession{PID: 30, DisplayName: "spotify.exe"},
	)
	sessions.volumeErr[20] = errors.New("session query failed")

	engine := newTestEngine(t, t.TempDir(), sessions, &fakeDeviceCatalog{}, &fakePolicy{})

	engine.SetAppCategory(10, StreamVoice)
	engine.SetAppCategory(20, StreamVoice)
	engine.SetAppCategory(30, StreamMusic)

	// pid 20's failure must not abort propagation, and pid 30 is in a
	// different stream and must be untouched
	if !engine.SetStreamVolume(StreamVoice, 2.0) {
		t.Fatal("SetStreamVolume returned false")
	}

	if got := sessions.volumes[10]; got != 1.0 {
		t.Fatalf("pid 10 volume %v, want clamped 1.0", got)
	}

	if _, ok := sessions.volumes[30]; ok {
		t.Fatal("stream volume leaked to a pid in another stream")
	}

	if got := engine.StreamVolume(StreamVoice); got != 1.0 {
		t.Fatalf("StreamVolume(voice) = %v, want 1.0", got)
	}
}

func TestStreamVolumeDefault(t *testing.T) {
	engine := newTestEngine(t, t.TempDir(), newFakeSessionFinder(), &fakeDeviceCatalog{}, &fakePolicy{})

	if got := engine.StreamVolume(StreamMusic); got != 1.0 {
		t.Fatalf("StreamVolume default = %v, want 1.0", got)
	}
}

func TestEngineStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	speakers := outputDevice("Speakers", 0)
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{speakers}, defaultOut: speakers}

	engine := newTestEngine(t, dir, newFakeSessionFinder(), devices, &fakePolicy{})

	id := speakers.ID
	engine.SetRoute(StreamGame, &id)
	engine.SetRoute(StreamVoice, nil)
	engine.SetAppCategory(42, StreamGame)
	engine.SetStreamVolume(StreamMusic, 0.3)

	reloaded := newTestEngine(t, dir, newFakeSessionFinder(), devices, &fakePolicy{})

	routes := reloaded.GetRoutes()
	if got := routes[StreamGame]; got == nil || *got != id {
		t.Fatalf("reloaded route for game = %v, want %q", got, id)
	}

	if got, ok := routes[StreamVoice]; !ok || got != nil {
		t.Fatalf("reloaded route for voice = %v (present=%v), want explicit nil", got, ok)
	}

	if got := reloaded.GetAppCategories()[42]; got != StreamGame {
		t.Fatalf("reloaded category for pid 42 = %q, want %q", got, StreamGame)
	}

	if got := reloaded.StreamVolume(StreamMusic); got != float32(0.3) {
		t.Fatalf("reloaded StreamVolume(music) = %v, want 0.3", got)
	}
}

func TestListAudioDevicesToleratesFailure(t *testing.T) {
	devices := &fakeDeviceCatalog{listErr: errors.New("enumeration failed")}
	engine := newTestEngine(t, t.TempDir(), newFakeSessionFinder(), devices, &fakePolicy{})

	if got := engine.ListAudioDevices(); got != nil {
		t.Fatalf("ListAudioDevices = %v, want nil on enumeration failure", got)
	}
}
