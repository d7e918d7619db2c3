package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamusis/catsdogs/internal/errs"
)

// ManifestFormat describes the manifest line format in split metadata.
const ManifestFormat = "path\\tlabel (repo-relative path)"

// ManifestName returns the manifest file name for a split.
func ManifestName(sp Split) string {
	return string(sp) + ".txt"
}

// FormatManifest renders samples as path<TAB>label lines with a trailing
// newline when non-empty.
func FormatManifest(samples []Sample) []byte {
	var buf bytes.Buffer
	for _, s := range samples {
		buf.WriteString(s.Path)
		buf.WriteByte('\t')
		buf.WriteString(s.Label)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteManifest writes samples to path.
func WriteManifest(path string, samples []Sample) error {
	if err := os.WriteFile(path, FormatManifest(samples), 0o644); err != nil {
		return fmt.Errorf("cannot write manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest parses a manifest file. Blank lines are ignored; any other
// line must be path<TAB>label with a known label.
func ReadManifest(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest %s", errs.ErrNotFound, path)
		}
		return nil, fmt.Errorf("cannot open manifest %s: %w", path, err)
	}
	defer f.Close()

	var out []Sample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, label, ok := strings.Cut(line, "\t")
		if !ok || p == "" {
			return nil, fmt.Errorf("invalid manifest line %s:%d: %q", path, lineNo, line)
		}
		if _, known := ClassToIndex[label]; !known {
			return nil, fmt.Errorf("unknown label %q in %s:%d", label, path, lineNo)
		}
		out = append(out, Sample{Path: p, Label: label})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", path, err)
	}
	return out, nil
}

// Resolve turns a manifest path into a filesystem path. Relative manifest
// paths are relative to baseDir.
func Resolve(baseDir, manifestPath string) string {
	p := filepath.FromSlash(manifestPath)
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

// displayPath converts an absolute path into the manifest form: relative to
// baseDir when it lies below it, absolute otherwise.
func displayPath(baseDir, p string) string {
	if baseDir != "" {
		if rel, err := filepath.Rel(baseDir, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return NormalizePath(rel)
		}
	}
	return NormalizePath(p)
}
