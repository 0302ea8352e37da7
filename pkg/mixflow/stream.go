package mixflow

import (
	"fmt"
	"strings"

	"github.com/thoas/go-funk"
)

// StreamID identifies one of the logical audio streams a process can be
// assigned to. The set is closed and ordered; the order is the canonical
// serialization order.
type StreamID string

const (
	StreamGame  StreamID = "game"
	StreamVoice StreamID = "voice"
	StreamMusic StreamID = "music"
)

// Streams returns every logical stream in canonical order.
func Streams() []StreamID {
	return []StreamID{StreamGame, StreamVoice, StreamMusic}
}

// Valid reports whether s is a member of the closed stream set.
func (s StreamID) Valid() bool {
	return funk.Contains(Streams(), s)
}

// ParseStreamID converts a raw string (e.g. from a UI command or the state
// file) into a StreamID, rejecting anything outside the closed set.
func ParseStreamID(raw string) (StreamID, error) {
	s := StreamID(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown stream id: %q", raw)
	}

	return s, nil
}
