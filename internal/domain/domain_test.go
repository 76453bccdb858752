package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestVectorRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3.75, 0}
	got := DecodeVector(EncodeVector(v))
	if len(got) != len(v) {
		t.Fatalf("len = %d, want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], v[i])
		}
	}
}

func TestDecodeVectorRejectsMisaligned(t *testing.T) {
	if DecodeVector([]byte{1, 2, 3}) != nil {
		t.Fatal("misaligned input should decode to nil")
	}
	if DecodeVector(nil) != nil {
		t.Fatal("nil input should decode to nil")
	}
}

func TestCompositeText(t *testing.T) {
	r := &Resource{Title: "Quantum Computing", Description: "An intro"}
	r.SetSubjects([]string{"Physics", "Computing"})
	want := "Quantum Computing · An intro · Physics · Computing"
	if got := r.CompositeText(); got != want {
		t.Fatalf("CompositeText = %q, want %q", got, want)
	}

	empty := &Resource{Title: "Only Title"}
	if got := empty.CompositeText(); got != "Only Title" {
		t.Fatalf("CompositeText = %q", got)
	}
}

func TestHypothesisBridgeIDs(t *testing.T) {
	h := &DiscoveryHypothesis{}
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	h.SetBridgeIDs(ids)
	got := h.BridgeIDs()
	if len(got) != 2 || got[0] != ids[0] || got[1] != ids[1] {
		t.Fatalf("BridgeIDs = %v, want %v", got, ids)
	}
}

func TestSubjectListNeverNil(t *testing.T) {
	r := &Resource{}
	if r.SubjectList() == nil {
		t.Fatal("SubjectList should not return nil")
	}
}
