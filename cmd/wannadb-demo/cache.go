package main

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// embedCache is an optional on-disk scratch cache for embeddings, keyed by
// the exact text embedded. It exists so a demo run over a large document
// set doesn't recompute the same nugget's vector twice across attributes,
// and so swapping localEmbed for a real network-backed provider later
// doesn't require re-embedding documents already on disk.
type embedCache struct {
	db *sql.DB
}

// openEmbedCache opens (creating if needed) a pure-Go sqlite database at
// path for caching embeddings. A nil *embedCache is a valid no-op cache.
func openEmbedCache(path string) (*embedCache, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS embeddings (
		text TEXT PRIMARY KEY,
		vector BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return &embedCache{db: db}, nil
}

func (c *embedCache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// wrap returns an embed func that consults the cache before falling back
// to fn, storing whatever fn returns for next time.
func (c *embedCache) wrap(fn func(string) ([]float64, error)) func(string) ([]float64, error) {
	if c == nil {
		return fn
	}
	return func(text string) ([]float64, error) {
		if vec, ok := c.lookup(text); ok {
			return vec, nil
		}
		vec, err := fn(text)
		if err != nil {
			return nil, err
		}
		c.store(text, vec)
		return vec, nil
	}
}

func (c *embedCache) lookup(text string) ([]float64, bool) {
	var blob []byte
	if err := c.db.QueryRow(`SELECT vector FROM embeddings WHERE text = ?`, text).Scan(&blob); err != nil {
		return nil, false
	}
	return decodeVector(blob), true
}

func (c *embedCache) store(text string, vec []float64) {
	// Best-effort: a failed cache write never fails the run.
	_, _ = c.db.Exec(`INSERT OR REPLACE INTO embeddings (text, vector) VALUES (?, ?)`, text, encodeVector(vec))
}

func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float64 {
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}
