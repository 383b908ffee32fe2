// Package annindex implements the optional ANN index resource: a
// sqlite-vec virtual table when the vec0 extension loads, a brute-force
// cosine scan otherwise, both behind the same Index interface so
// callers never branch on which backend is live.
package annindex

import (
	"database/sql"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/wannadb/matching/internal/logging"
)

func init() {
	sqlite_vec.Auto()
}

// Match is one nearest-neighbor hit.
type Match struct {
	ID       string
	Distance float64 // cosine distance, [0, 2]
}

// Index ranks previously-indexed vectors by cosine distance to a query.
type Index interface {
	// Add inserts or replaces the vector stored under id.
	Add(id string, vec []float64) error
	// Search returns up to topK nearest neighbors to query, ascending by
	// distance.
	Search(query []float64, topK int) ([]Match, error)
	// Len reports how many vectors are indexed.
	Len() int
	Close() error
}

// Open returns a sqlite-vec-backed Index at path (use ":memory:" for a
// scratch index), falling back to a brute-force scan if the vec0
// extension fails to register. The fallback decision is made once here
// at open time, since this index's dimension is fixed up front by the
// caller rather than discovered from existing rows.
func Open(path string, dim int) (Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("annindex: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("annindex: ping: %w", err)
	}

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		logging.Info("annindex", "sqlite-vec not available: %v — falling back to full scan", err)
		db.Close()
		return newScanIndex(dim), nil
	}
	logging.Info("annindex", "sqlite-vec %s loaded (dim=%d)", vecVersion, dim)

	createStmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS nugget_vec USING vec0(embedding float[%d], +nugget_id TEXT)`, dim)
	if _, err := db.Exec(createStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("annindex: create vec0 table: %w", err)
	}
	return &vecIndex{db: db, dim: dim}, nil
}

type vecIndex struct {
	db  *sql.DB
	dim int
}

func (v *vecIndex) Add(id string, vec []float64) error {
	if len(vec) != v.dim {
		return fmt.Errorf("annindex: vector has dim %d, index expects %d", len(vec), v.dim)
	}
	norm := normalize(float64To32(vec))
	serialized, err := sqlite_vec.SerializeFloat32(norm)
	if err != nil {
		return fmt.Errorf("annindex: serialize: %w", err)
	}
	rowid := stableRowID(id)
	if _, err := v.db.Exec(`DELETE FROM nugget_vec WHERE rowid = ?`, rowid); err != nil {
		return fmt.Errorf("annindex: delete existing: %w", err)
	}
	if _, err := v.db.Exec(`INSERT INTO nugget_vec(rowid, embedding, nugget_id) VALUES (?, ?, ?)`, rowid, serialized, id); err != nil {
		return fmt.Errorf("annindex: insert: %w", err)
	}
	return nil
}

func (v *vecIndex) Search(query []float64, topK int) ([]Match, error) {
	if len(query) != v.dim || topK <= 0 {
		return nil, nil
	}
	norm := normalize(float64To32(query))
	serialized, err := sqlite_vec.SerializeFloat32(norm)
	if err != nil {
		return nil, fmt.Errorf("annindex: serialize query: %w", err)
	}
	rows, err := v.db.Query(`
		SELECT nugget_id, distance
		FROM nugget_vec
		WHERE embedding MATCH ?
		  AND k = ?
		ORDER BY distance ASC
	`, serialized, topK)
	if err != nil {
		return nil, fmt.Errorf("annindex: search: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var id string
		var l2 float64
		if err := rows.Scan(&id, &l2); err != nil {
			continue
		}
		out = append(out, Match{ID: id, Distance: l2ToCosine(l2)})
	}
	return out, rows.Err()
}

func (v *vecIndex) Len() int {
	var n int
	_ = v.db.QueryRow(`SELECT COUNT(*) FROM nugget_vec`).Scan(&n)
	return n
}

func (v *vecIndex) Close() error { return v.db.Close() }

// stableRowID derives a deterministic int64 rowid from a string ID so
// repeated Add calls for the same id overwrite rather than duplicate.
func stableRowID(id string) int64 {
	var h int64 = 1469598103934665603 // 64-bit FNV offset basis with its last digit dropped, to fit int64
	for _, b := range []byte(id) {
		h ^= int64(b)
		h *= 1099511628211 // FNV prime
	}
	if h < 0 {
		h = -h
	}
	return h
}

func float64To32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// normalize unit-normalizes v so vec0's native L2 distance is equivalent
// to cosine distance: cosine_dist = L2_dist^2 / 2.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func l2ToCosine(l2 float64) float64 {
	d := (l2 * l2) / 2
	if d > 2 {
		d = 2
	}
	if d < 0 {
		d = 0
	}
	return d
}
