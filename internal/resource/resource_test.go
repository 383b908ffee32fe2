package resource

import (
	"errors"
	"testing"
)

type fakeResource struct {
	loaded                 bool
	loadErr                error
	loadCalls, unloadCalls int
}

func (f *fakeResource) Load() error {
	f.loadCalls++
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = true
	return nil
}

func (f *fakeResource) Unload() error {
	f.unloadCalls++
	f.loaded = false
	return nil
}

func TestOpenIsIdempotentAndRefCounted(t *testing.T) {
	tok := &fakeResource{}
	m := New(map[ID]Resource{IDTokenizer: tok})

	if err := m.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Open(); err != nil {
		t.Fatalf("nested Open: %v", err)
	}
	if tok.loadCalls != 1 {
		t.Fatalf("expected Load called once across nested Opens, got %d", tok.loadCalls)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !tok.loaded {
		t.Fatalf("resource should still be loaded: one Close against two Opens")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if tok.loaded {
		t.Fatalf("resource should be unloaded once refCount reaches 0")
	}
}

func TestGetFailsWhenNotOpen(t *testing.T) {
	m := New(map[ID]Resource{IDTokenizer: &fakeResource{}})
	if _, err := m.Get(IDTokenizer); err == nil {
		t.Fatalf("expected error before Open")
	}
	m.Open()
	defer m.Close()
	if _, err := m.Get(IDTokenizer); err != nil {
		t.Fatalf("Get after Open: %v", err)
	}
	if _, err := m.Get(IDANNIndex); err == nil {
		t.Fatalf("expected error for unregistered resource")
	}
}

func TestEmbeddingModelResourceLifecycle(t *testing.T) {
	r := &EmbeddingModelResource{Embed: func(string) ([]float64, error) { return []float64{1}, nil }}
	m := New(map[ID]Resource{IDEmbeddingModel: r})

	if err := m.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !r.Loaded() {
		t.Fatalf("expected the embedding model loaded after Open")
	}
	got, err := m.Get(IDEmbeddingModel)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.(*EmbeddingModelResource) != r {
		t.Fatalf("Get returned a different resource")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.Loaded() {
		t.Fatalf("expected the embedding model unloaded after Close")
	}
}

func TestANNIndexResourceLoadsScratchIndex(t *testing.T) {
	r := &ANNIndexResource{Path: ":memory:", Dim: 2}
	m := New(map[ID]Resource{IDANNIndex: r})

	if err := m.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	idx := r.Index()
	if idx == nil {
		t.Fatalf("expected an index handle after Open")
	}
	if err := idx.Add("a", []float64{1, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	matches, err := idx.Search([]float64{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Fatalf("unexpected matches %+v", matches)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.Index() != nil {
		t.Fatalf("expected the index handle released after Close")
	}
}

func TestOpenUnwindsOnPartialLoadFailure(t *testing.T) {
	ok := &fakeResource{}
	bad := &fakeResource{loadErr: errors.New("boom")}
	m := New(map[ID]Resource{IDTokenizer: ok, IDStopwords: bad})

	if err := m.Open(); err == nil {
		t.Fatalf("expected Open to surface the load failure")
	}
	if ok.loaded {
		t.Fatalf("expected the successfully-loaded resource to be unwound")
	}
	if _, err := m.Get(IDTokenizer); err == nil {
		t.Fatalf("manager should not be considered open after a failed Open")
	}
}
