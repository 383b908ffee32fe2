package annindex

import "testing"

// TestOpenProvidesWorkingIndex goes through Open rather than the scan
// fallback directly, so whichever backend registers (the vec0 virtual
// table or the brute-force scan) is the one exercised.
func TestOpenProvidesWorkingIndex(t *testing.T) {
	idx, err := Open(":memory:", 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	if err := idx.Add("a", []float64{1, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add("b", []float64{0, 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("Len = %d, want 2", idx.Len())
	}

	matches, err := idx.Search([]float64{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Fatalf("expected the exact match first, got %+v", matches)
	}
	if matches[0].Distance > 1e-6 {
		t.Fatalf("expected near-zero distance for an identical vector, got %v", matches[0].Distance)
	}
}

func TestOpenRejectsMismatchedDimension(t *testing.T) {
	idx, err := Open(":memory:", 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()
	if err := idx.Add("a", []float64{1, 0}); err == nil {
		t.Fatalf("expected Add to reject a vector of the wrong dimension")
	}
}

func TestScanIndexRanksByCosineDistance(t *testing.T) {
	idx := newScanIndex(2)
	if err := idx.Add("a", []float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add("b", []float64{0, 1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add("c", []float64{0.99, 0.1}); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Search([]float64{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "a" {
		t.Fatalf("expected exact match 'a' first, got %q", matches[0].ID)
	}
	if matches[1].ID != "c" {
		t.Fatalf("expected 'c' (close to query) second, got %q", matches[1].ID)
	}
}

func TestScanIndexAddOverwrites(t *testing.T) {
	idx := newScanIndex(2)
	if err := idx.Add("a", []float64{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add("a", []float64{0, 1}); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected overwrite to keep Len()==1, got %d", idx.Len())
	}
	matches, err := idx.Search([]float64{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Distance > 1e-9 {
		t.Fatalf("expected updated vector to be an exact match, got %+v", matches)
	}
}
