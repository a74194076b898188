package orchestrator

import "testing"

func TestNewID_Length(t *testing.T) {
	id, err := newID()
	if err != nil {
		t.Fatalf("newID() error = %v", err)
	}
	if len(id) != 32 {
		t.Errorf("len(newID()) = %d, want 32 (16 bytes hex-encoded)", len(id))
	}
}

func TestNewID_Unique(t *testing.T) {
	a, _ := newID()
	b, _ := newID()
	if a == b {
		t.Error("two consecutive newID() calls produced the same value")
	}
}

func TestMustNewID_ReturnsValidID(t *testing.T) {
	id := mustNewID()
	if len(id) != 32 {
		t.Errorf("len(mustNewID()) = %d, want 32", len(id))
	}
}
