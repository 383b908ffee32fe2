package resource

import (
	"github.com/wannadb/matching/internal/annindex"
	"github.com/wannadb/matching/internal/extractor"
)

// EmbeddingModelResource wraps a caller-supplied embedding function as a
// Resource so the manager can account for its lifecycle alongside the
// tokenizer and stopword set, even though the actual model lives outside
// this process.
type EmbeddingModelResource struct {
	Embed  func(text string) ([]float64, error)
	loaded bool
}

func (r *EmbeddingModelResource) Load() error {
	r.loaded = true
	return nil
}

func (r *EmbeddingModelResource) Unload() error {
	r.loaded = false
	return nil
}

// Loaded reports whether the resource has been acquired.
func (r *EmbeddingModelResource) Loaded() bool { return r.loaded }

// TokenizerResource owns the prose-backed tokenizer and default stopword
// set.
type TokenizerResource struct {
	stopwords map[string]bool
}

func (r *TokenizerResource) Load() error {
	r.stopwords = extractor.DefaultStopwords()
	return nil
}

func (r *TokenizerResource) Unload() error {
	r.stopwords = nil
	return nil
}

// Tokenize delegates to extractor.Tokenize; it is only meaningful once
// Load has run, matching every other resource's "scoped acquisition"
// contract.
func (r *TokenizerResource) Tokenize(text string) ([]string, error) {
	return extractor.Tokenize(text)
}

// IsStopword reports whether w is in the loaded stopword set.
func (r *TokenizerResource) IsStopword(w string) bool {
	return r.stopwords[w]
}

// ANNIndexResource owns an optional ANN index handle. It does not sample
// memory itself: a caller spills it by calling Unload when the manager's
// gopsutil-backed ShouldSpillANNIndex reports memory pressure.
type ANNIndexResource struct {
	Path string
	Dim  int

	idx annindex.Index
}

func (r *ANNIndexResource) Load() error {
	idx, err := annindex.Open(r.Path, r.Dim)
	if err != nil {
		return err
	}
	r.idx = idx
	return nil
}

func (r *ANNIndexResource) Unload() error {
	if r.idx == nil {
		return nil
	}
	err := r.idx.Close()
	r.idx = nil
	return err
}

// Index returns the underlying ANN index, or nil if not loaded.
func (r *ANNIndexResource) Index() annindex.Index { return r.idx }
