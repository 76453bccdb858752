package vecmath

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	got := Cosine(a, b)
	want := 0.9746318461970762
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Cosine = %v, want %v", got, want)
	}
	if Cosine(a, []float32{1}) != 0 {
		t.Fatal("dimension mismatch should yield 0")
	}
	if Cosine(a, []float32{0, 0, 0}) != 0 {
		t.Fatal("zero vector should yield 0")
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(Norm(v)-1) > 1e-6 {
		t.Fatalf("norm = %v, want 1", Norm(v))
	}
	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Fatal("zero vector should stay zero")
	}
}

func TestMinMax(t *testing.T) {
	scaled := MinMax([]float64{2, 6, 4})
	if scaled[0] != 0 || scaled[1] != 1 || scaled[2] != 0.5 {
		t.Fatalf("unexpected normalization: %v", scaled)
	}

	flat := MinMax([]float64{3, 3})
	if flat[0] != 1 || flat[1] != 1 {
		t.Fatalf("flat distribution should map to 1.0: %v", flat)
	}

	if got := MinMax(nil); len(got) != 0 {
		t.Fatalf("empty input should yield empty output: %v", got)
	}
}

func TestMean(t *testing.T) {
	m := Mean([][]float32{{1, 3}, {3, 5}})
	if m[0] != 2 || m[1] != 4 {
		t.Fatalf("Mean = %v", m)
	}
	if Mean(nil) != nil {
		t.Fatal("empty input should return nil")
	}
}

func TestJaccard(t *testing.T) {
	a := map[string]struct{}{"x": {}, "y": {}}
	b := map[string]struct{}{"y": {}, "z": {}}
	if got := Jaccard(a, b); math.Abs(got-1.0/3.0) > 1e-12 {
		t.Fatalf("Jaccard = %v", got)
	}
	if Jaccard(nil, nil) != 0 {
		t.Fatal("empty sets should yield 0")
	}
}
