package rag

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	indexFile    = "index.gob"
	metadataFile = "metadata.json"
)

// FlatIndex is an in-memory exact-search vector index backed by parallel
// slices: vectors[i], texts[i] and meta[i] describe the same chunk. Search is
// a brute-force scan over all vectors using squared Euclidean distance, which
// keeps results exact and reproducible at the corpus sizes this assistant
// serves. Safe for concurrent searches; Add and Search are mutually excluded.
type FlatIndex struct {
	dir string

	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	texts   []string
	meta    []ChunkMetadata
	ready   bool
}

// NewFlatIndex returns an index that persists its artifacts under dir. The
// index starts empty and not ready; call Create before ingesting or Load to
// restore a saved index.
func NewFlatIndex(dir string) *FlatIndex {
	return &FlatIndex{dir: dir}
}

// Create resets the index to empty with the given embedding dimension and
// marks it ready for Add calls.
func (x *FlatIndex) Create(dimension int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dim = dimension
	x.vectors = nil
	x.texts = nil
	x.meta = nil
	x.ready = true
}

// Add appends chunks and their embeddings to the index. The two slices must
// be parallel and every embedding must match the index dimension; on any
// mismatch the index is left unchanged.
func (x *FlatIndex) Add(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("rag: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.ready {
		return ErrIndexUnavailable
	}
	for i, emb := range embeddings {
		if len(emb) != x.dim {
			return fmt.Errorf("rag: embedding %d has %d dimensions, index has %d: %w",
				i, len(emb), x.dim, ErrDimensionMismatch)
		}
	}
	for i, c := range chunks {
		x.vectors = append(x.vectors, embeddings[i])
		x.texts = append(x.texts, c.Text)
		x.meta = append(x.meta, c.Metadata)
	}
	return nil
}

// Search scans all stored vectors and returns the topK nearest chunks by
// squared Euclidean distance, converted to scores with score = 1/(1+distance).
// Ties are broken by insertion order. An empty index yields an empty slice.
func (x *FlatIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.ready {
		return nil, ErrIndexUnavailable
	}
	if len(x.vectors) == 0 || topK <= 0 {
		return []SearchResult{}, nil
	}
	if len(queryEmbedding) != x.dim {
		return nil, fmt.Errorf("rag: query has %d dimensions, index has %d: %w",
			len(queryEmbedding), x.dim, ErrDimensionMismatch)
	}

	results := make([]SearchResult, 0, len(x.vectors))
	for i, vec := range x.vectors {
		dist := squaredDistance(queryEmbedding, vec)
		results = append(results, SearchResult{
			Text:     x.texts[i],
			Score:    1.0 / (1.0 + dist),
			Metadata: x.meta[i],
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (x *FlatIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Ready reports whether the index has been created or loaded.
func (x *FlatIndex) Ready() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ready
}

// Close is a no-op; the flat index holds no external resources.
func (x *FlatIndex) Close() error { return nil }

// persistedMetadata is the JSON sidecar written next to the gob-encoded
// vectors. Keeping texts and metadata in JSON makes the artifact inspectable
// without tooling. Checksum ties the sidecar to the vectors file it was
// written with; see snapshotChecksum.
type persistedMetadata struct {
	Dimension int             `json:"dimension"`
	Checksum  uint64          `json:"checksum"`
	Texts     []string        `json:"texts"`
	Metadata  []ChunkMetadata `json:"metadata"`
}

type persistedVectors struct {
	Dimension int
	Checksum  uint64
	Vectors   [][]float32
}

// snapshotChecksum fingerprints a full index snapshot: dimension, vector
// values, texts and chunk metadata. Save stamps the same checksum into both
// artifacts so Load can tell whether they came from the same Save call.
func snapshotChecksum(dim int, vectors [][]float32, texts []string, meta []ChunkMetadata) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}
	writeStr := func(s string) {
		writeInt(len(s))
		h.Write([]byte(s))
	}
	writeInt(dim)
	writeInt(len(vectors))
	for _, vec := range vectors {
		writeInt(len(vec))
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			h.Write(buf[:4])
		}
	}
	for _, t := range texts {
		writeStr(t)
	}
	for _, m := range meta {
		writeStr(m.Source)
		writeInt(m.Ordinal)
		writeInt(m.TotalInSource)
	}
	return h.Sum64()
}

// Save writes the index to its directory as two artifacts: a gob file with
// the raw vectors and a JSON sidecar with texts and metadata. Each file is
// written to a temp path and renamed into place so readers never observe a
// partial artifact, and both carry the same snapshot checksum so a crash
// between the two renames cannot pair new vectors with a stale sidecar.
func (x *FlatIndex) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.ready {
		return ErrIndexUnavailable
	}
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return fmt.Errorf("rag: create index dir: %w", err)
	}

	sum := snapshotChecksum(x.dim, x.vectors, x.texts, x.meta)

	vecPath := filepath.Join(x.dir, indexFile)
	if err := writeAtomic(vecPath, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(persistedVectors{Dimension: x.dim, Checksum: sum, Vectors: x.vectors})
	}); err != nil {
		return fmt.Errorf("rag: save vectors: %w", err)
	}

	metaPath := filepath.Join(x.dir, metadataFile)
	if err := writeAtomic(metaPath, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(persistedMetadata{Dimension: x.dim, Checksum: sum, Texts: x.texts, Metadata: x.meta})
	}); err != nil {
		return fmt.Errorf("rag: save metadata: %w", err)
	}
	return nil
}

// Load restores a previously saved index from the store directory. It
// returns (false, nil) when no saved artifacts exist, so callers can treat a
// missing index as "not yet ingested" rather than a failure.
func (x *FlatIndex) Load() (bool, error) {
	vecPath := filepath.Join(x.dir, indexFile)
	metaPath := filepath.Join(x.dir, metadataFile)
	if _, err := os.Stat(vecPath); os.IsNotExist(err) {
		return false, nil
	}
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return false, nil
	}

	vf, err := os.Open(vecPath)
	if err != nil {
		return false, fmt.Errorf("rag: open vectors: %w", err)
	}
	defer vf.Close()
	var pv persistedVectors
	if err := gob.NewDecoder(vf).Decode(&pv); err != nil {
		return false, fmt.Errorf("rag: decode vectors: %w", err)
	}

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return false, fmt.Errorf("rag: read metadata: %w", err)
	}
	var pm persistedMetadata
	if err := json.Unmarshal(raw, &pm); err != nil {
		return false, fmt.Errorf("rag: decode metadata: %w", err)
	}

	if len(pv.Vectors) != len(pm.Texts) || len(pm.Texts) != len(pm.Metadata) {
		return false, fmt.Errorf("rag: corrupt index: %d vectors, %d texts, %d metadata entries",
			len(pv.Vectors), len(pm.Texts), len(pm.Metadata))
	}
	if pv.Dimension != pm.Dimension {
		return false, fmt.Errorf("rag: corrupt index: vector dimension %d, metadata dimension %d",
			pv.Dimension, pm.Dimension)
	}
	if pv.Checksum != pm.Checksum {
		return false, fmt.Errorf("rag: corrupt index: vectors and metadata are from different saves (checksum %x vs %x)",
			pv.Checksum, pm.Checksum)
	}
	if sum := snapshotChecksum(pv.Dimension, pv.Vectors, pm.Texts, pm.Metadata); sum != pv.Checksum {
		return false, fmt.Errorf("rag: corrupt index: checksum mismatch (stored %x, computed %x)", pv.Checksum, sum)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.dim = pv.Dimension
	x.vectors = pv.Vectors
	x.texts = pm.Texts
	x.meta = pm.Metadata
	x.ready = true
	return true, nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func squaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
