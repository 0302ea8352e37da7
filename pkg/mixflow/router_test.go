package mixflow

import (
	"errors"
	"testing"
)

func TestRerouteResolvesExactID(t *testing.T) {
	// two endpoints with the same friendly name: only the disambiguation
	// index in the id tells them apart
	first := outputDevice("Speakers", 0)
	second := outputDevice("Speakers", 1)

	sessions := newFakeSessionFinder(AppSession{PID: 42})
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{first, second}, defaultOut: first}
	policy := &fakePolicy{}

	router := newTestRouter(sessions, devices, policy)

	id := second.ID

	outcome, err := router.RerouteProcess(42, &id)
	if err != nil {
		t.Fatalf("RerouteProcess error: %v", err)
	}

	if outcome != RouteApplied {
		t.Fatalf("outcome = %v, want RouteApplied", outcome)
	}

	if len(policy.applied) != 1 || policy.applied[0].ID != second.ID {
		t.Fatalf("policy received %v, want exactly %q", policy.applied, second.ID)
	}
}

func TestRerouteResolvesByNameFallback(t *testing.T) {
	// the persisted id's index no longer exists after re-enumeration, but an
	// output with a matching name does
	live := outputDevice("Headphones (Realtek Audio)", 0)

	sessions := newFakeSessionFinder(AppSession{PID: 42})
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{live}, defaultOut: live}
	policy := &fakePolicy{}

	router := newTestRouter(sessions, devices, policy)

	stale := deviceID("Headphones (Realtek Audio)", DeviceOutput, 3)

	outcome, err := router.RerouteProcess(42, &stale)
	if err != nil {
		t.Fatalf("RerouteProcess error: %v", err)
	}

	if outcome != RouteApplied {
		t.Fatalf("outcome = %v, want RouteApplied", outcome)
	}

	if len(policy.applied) != 1 || policy.applied[0].ID != live.ID {
		t.Fatalf("policy received %v, want %q", policy.applied, live.ID)
	}
}

func TestRerouteNameFallbackSkipsInputs(t *testing.T) {
	mic := DeviceInfo{
		ID:   deviceID("Headset", DeviceInput, 0),
		Name: "Headset",
		Kind: DeviceInput,
	}

	sessions := newFakeSessionFinder(AppSession{PID: 42})
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{mic}}

	router := newTestRouter(sessions, devices, &fakePolicy{})

	id := deviceID("Headset", DeviceOutput, 0)

	_, err := router.RerouteProcess(42, &id)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("error = %v, want ErrDeviceNotFound (inputs must not satisfy an output route)", err)
	}
}

func TestRerouteDeviceNotFound(t *testing.T) {
	sessions := newFakeSessionFinder(AppSession{PID: 42})
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{outputDevice("Speakers", 0)}}

	router := newTestRouter(sessions, devices, &fakePolicy{})

	id := deviceID("Subwoofer", DeviceOutput, 0)

	_, err := router.RerouteProcess(42, &id)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRerouteNilRoutesToDefaultOutput(t *testing.T) {
	speakers := outputDevice("Speakers", 0)

	sessions := newFakeSessionFinder(AppSession{PID: 42})
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{speakers}, defaultOut: speakers}
	policy := &fakePolicy{}

	router := newTestRouter(sessions, devices, policy)

	outcome, err := router.RerouteProcess(42, nil)
	if err != nil {
		t.Fatalf("RerouteProcess error: %v", err)
	}

	if outcome != RouteApplied {
		t.Fatalf("outcome = %v, want RouteApplied", outcome)
	}

	if len(policy.applied) != 1 || policy.applied[0].ID != speakers.ID {
		t.Fatalf("policy received %v, want default output %q", policy.applied, speakers.ID)
	}
}

func TestRerouteFallsBackToNudge(t *testing.T) {
	speakers := outputDevice("Speakers", 0)

	sessions := newFakeSessionFinder(AppSession{PID: 42})
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{speakers}, defaultOut: speakers}

	router := newTestRouter(sessions, devices, &fakePolicy{err: errors.New("factory unavailable")})

	outcome, err := router.RerouteProcess(42, nil)
	if err != nil {
		t.Fatalf("RerouteProcess error: %v", err)
	}

	if outcome != RouteApplied {
		t.Fatalf("outcome = %v, want RouteApplied via nudge fallback", outcome)
	}

	want := []muteCall{
		{pid: 42, muted: false},
		{pid: 42, muted: true},
		{pid: 42, muted: false},
	}

	if len(sessions.muteCalls) != len(want) {
		t.Fatalf("nudge issued %d mute calls, want %d", len(sessions.muteCalls), len(want))
	}

	for i, call := range sessions.muteCalls {
		if call != want[i] {
			t.Fatalf("mute call %d = %+v, want %+v", i, call, want[i])
		}
	}
}

func TestRerouteNoLiveSession(t *testing.T) {
	speakers := outputDevice("Speakers", 0)

	sessions := newFakeSessionFinder()
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{speakers}, defaultOut: speakers}

	router := newTestRouter(sessions, devices, &fakePolicy{err: errors.New("factory unavailable")})

	outcome, err := router.RerouteProcess(42, nil)
	if err != nil {
		t.Fatalf("RerouteProcess error: %v, want nil (no session is not an error)", err)
	}

	if outcome != RouteNoSession {
		t.Fatalf("outcome = %v, want RouteNoSession", outcome)
	}
}

func TestRerouteNudgeHardFailure(t *testing.T) {
	speakers := outputDevice("Speakers", 0)

	sessions := newFakeSessionFinder(AppSession{PID: 42})
	sessions.muteErr = errors.New("session manager gone")
	devices := &fakeDeviceCatalog{devices: []DeviceInfo{speakers}, defaultOut: speakers}

	router := newTestRouter(sessions, devices, &fakePolicy{err: errors.New("factory unavailable")})

	if _, err := router.RerouteProcess(42, nil); err == nil {
		t.Fatal("RerouteProcess swallowed a hard nudge failure")
	}
}

func TestDeviceIDName(t *testing.T) {
	cases := map[string]string{
		"Speakers::output#1":    "Speakers",
		"USB Mic::input#0":      "USB Mic",
		"no separator at all":   "no separator at all",
		"Weird::Name::output#2": "Weird",
	}

	for id, want := range cases {
		if got := deviceIDName(id); got != want {
			t.Errorf("deviceIDName(%q) = %q, want %q", id, got, want)
		}
	}

	if got := deviceIDName(deviceID("X", DeviceOutput, 0)); got != "X" {
		t.Errorf("deviceIDName of a formatted id = %q, want %q", got, "X")
	}
}
