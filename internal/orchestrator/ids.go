package orchestrator

import (
	"crypto/rand"
	"encoding/hex"
)

// newID produces a random 16-byte hex string, used for promptName,
// audioContentId, and the per-content-block contentName values that must be
// fresh and collision-free within a session's lifetime.
func newID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// mustNewID is newID without an error return, for call sites inside an
// already-locked section where generating a contentName cannot reasonably
// fail and a returned error would only complicate the caller's control flow
// (crypto/rand.Read fails only if the OS entropy source is gone, which is
// unrecoverable for this process regardless).
func mustNewID() string {
	id, err := newID()
	if err != nil {
		panic("orchestrator: crypto/rand unavailable: " + err.Error())
	}
	return id
}
