package featureset

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	cacheVersion   = 1
	cacheManifest  = "features_manifest.json"
	defaultVectors = "vectors.f32"
	defaultSamples = "samples.jsonl"
)

// CacheManifest describes one cached feature matrix and the parameters it
// was built with. Rows are only reused when all parameters match.
type CacheManifest struct {
	CacheVersion  int    `json:"cache_version"`
	CreatedAt     string `json:"created_at"`
	Dim           int    `json:"dim"`
	Bins          int    `json:"bins"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Normalize     bool   `json:"normalize"`
	Augment       bool   `json:"augment"`
	Augmentations int    `json:"augmentations"`
	Seed          int64  `json:"seed"`
	VectorFile    string `json:"vector_file"`
	SamplesFile   string `json:"samples_file"`
}

// compatible reports whether rows built under m can stand in for rows built
// under want.
func (m CacheManifest) compatible(want CacheManifest) bool {
	return m.CacheVersion == want.CacheVersion &&
		m.Dim == want.Dim &&
		m.Bins == want.Bins &&
		m.Width == want.Width &&
		m.Height == want.Height &&
		m.Normalize == want.Normalize &&
		m.Augment == want.Augment &&
		m.Augmentations == want.Augmentations &&
		m.Seed == want.Seed
}

// SampleEntry is one manifest sample in samples.jsonl. Rows counts the
// feature rows it contributed (1 plus its augmentations).
type SampleEntry struct {
	Index       int    `json:"index"`
	Path        string `json:"path"`
	Label       string `json:"label"`
	ContentHash string `json:"content_hash"`
	Rows        int    `json:"rows"`
}

// Cache is a loaded feature cache.
type Cache struct {
	Manifest CacheManifest
	Samples  []SampleEntry
	Vectors  []float32
}

// ContentHash returns the hex sha256 of an image file's bytes.
func ContentHash(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// WriteCache writes cache artifacts to dir.
func WriteCache(dir string, manifest CacheManifest, samples []SampleEntry, vectors []float32) error {
	if manifest.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d", manifest.Dim)
	}
	rows := 0
	for _, s := range samples {
		rows += s.Rows
	}
	if len(vectors) != rows*manifest.Dim {
		return fmt.Errorf("vector length mismatch: got %d want %d", len(vectors), rows*manifest.Dim)
	}
	if manifest.VectorFile == "" {
		manifest.VectorFile = defaultVectors
	}
	if manifest.SamplesFile == "" {
		manifest.SamplesFile = defaultSamples
	}
	if manifest.CreatedAt == "" {
		manifest.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create cache dir %s: %w", dir, err)
	}

	mb, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, cacheManifest), mb, 0o644); err != nil {
		return fmt.Errorf("cannot write cache manifest: %w", err)
	}

	sf, err := os.Create(filepath.Join(dir, manifest.SamplesFile))
	if err != nil {
		return fmt.Errorf("cannot create samples file: %w", err)
	}
	bw := bufio.NewWriter(sf)
	enc := json.NewEncoder(bw)
	for _, s := range samples {
		if err := enc.Encode(s); err != nil {
			_ = sf.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = sf.Close()
		return err
	}
	if err := sf.Close(); err != nil {
		return err
	}

	vf, err := os.Create(filepath.Join(dir, manifest.VectorFile))
	if err != nil {
		return fmt.Errorf("cannot create vectors file: %w", err)
	}
	if err := binary.Write(vf, binary.LittleEndian, vectors); err != nil {
		_ = vf.Close()
		return fmt.Errorf("cannot write vectors: %w", err)
	}
	return vf.Close()
}

// LoadCache reads a feature cache from dir.
func LoadCache(dir string) (*Cache, error) {
	manifestPath := filepath.Join(dir, cacheManifest)
	b, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read cache manifest %s: %w", manifestPath, err)
	}
	var m CacheManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("invalid cache manifest JSON %s: %w", manifestPath, err)
	}
	if m.Dim <= 0 {
		return nil, fmt.Errorf("invalid dim in cache manifest: %d", m.Dim)
	}
	if m.VectorFile == "" {
		m.VectorFile = defaultVectors
	}
	if m.SamplesFile == "" {
		m.SamplesFile = defaultSamples
	}

	samples, err := loadSamples(filepath.Join(dir, m.SamplesFile))
	if err != nil {
		return nil, err
	}
	rows := 0
	for _, s := range samples {
		rows += s.Rows
	}
	vectors, err := loadVectors(filepath.Join(dir, m.VectorFile), rows, m.Dim)
	if err != nil {
		return nil, err
	}
	return &Cache{Manifest: m, Samples: samples, Vectors: vectors}, nil
}

func loadSamples(path string) ([]SampleEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open samples file %s: %w", path, err)
	}
	defer f.Close()

	var out []SampleEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e SampleEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("invalid samples JSONL %s: %w", path, err)
		}
		if e.Rows <= 0 {
			return nil, fmt.Errorf("invalid row count %d for %s in %s", e.Rows, e.Path, path)
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read samples file %s: %w", path, err)
	}
	return out, nil
}

func loadVectors(path string, rows, dim int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open vector file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat vector file %s: %w", path, err)
	}
	expected := int64(rows * dim * 4)
	if expected != st.Size() {
		return nil, fmt.Errorf("vector file size mismatch: got %d want %d (rows=%d dim=%d)", st.Size(), expected, rows, dim)
	}

	out := make([]float32, rows*dim)
	if err := binary.Read(io.LimitReader(f, expected), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("cannot read vectors from %s: %w", path, err)
	}
	return out, nil
}

// AtomicSwap replaces destDir with srcDir by renaming.
func AtomicSwap(srcDir, destDir string) error {
	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	backup := destDir + ".bak"
	_ = os.RemoveAll(backup)
	if _, err := os.Stat(destDir); err == nil {
		if err := os.Rename(destDir, backup); err != nil {
			return err
		}
	}
	if err := os.Rename(srcDir, destDir); err != nil {
		// rollback best-effort
		if _, stErr := os.Stat(backup); stErr == nil {
			_ = os.Rename(backup, destDir)
		}
		return err
	}
	_ = os.RemoveAll(backup)
	return nil
}
