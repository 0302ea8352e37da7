package mixflow

// SessionFinder represents an entity that can find and control the
// per-process audio sessions currently live on the OS audio subsystem.
// Implementations never cache: every call re-enumerates the subsystem, so
// results can't go stale between calls.
type SessionFinder interface {
	// ListSessions enumerates every active output endpoint and its
	// per-process sessions, deduplicated by pid (first occurrence wins).
	// System sound sessions (pid 0) are excluded. Name resolution failures
	// degrade to placeholder names; session/volume query failures abort the
	// whole call with a descriptive error.
	ListSessions() ([]AppSession, error)

	// SetSessionVolume applies a master volume to the live session whose
	// pid matches. Returns false (and no error) when the process has no
	// active session.
	SetSessionVolume(pid uint32, volume float32) (bool, error)

	// SetSessionMute mutes or unmutes the live session whose pid matches,
	// with the same found/not-found semantics as SetSessionVolume.
	SetSessionMute(pid uint32, muted bool) (bool, error)

	Release() error
}
