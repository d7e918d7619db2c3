package dataset

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamusis/catsdogs/internal/errs"
)

// CollectArchive discovers labeled images from the entry names of a zip
// archive without extracting it. Each entry maps to rawDir/<entry name>.
// The dataset root is rawDir/<top> when every image entry shares one
// top-level directory, rawDir otherwise.
func CollectArchive(zipPath, rawDir string) (map[string][]string, string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: zip file not found: %s", errs.ErrNotFound, zipPath)
		}
		return nil, "", fmt.Errorf("cannot open zip %s: %w", zipPath, err)
	}
	defer zr.Close()

	byLabel := map[string][]string{LabelCat: {}, LabelDog: {}}
	tops := map[string]struct{}{}
	var n int
	for _, f := range zr.File {
		name := f.Name
		if strings.HasSuffix(name, "/") || !IsImageName(name) {
			continue
		}
		parts := strings.Split(name, "/")
		tops[parts[0]] = struct{}{}
		label, ok := InferLabel(parts)
		if !ok {
			continue
		}
		byLabel[label] = append(byLabel[label], filepath.Join(rawDir, filepath.FromSlash(name)))
		n++
	}
	if n == 0 {
		return nil, "", fmt.Errorf("%w: no images found inside zip: %s", errs.ErrNotFound, zipPath)
	}

	root := rawDir
	if len(tops) == 1 {
		for top := range tops {
			root = filepath.Join(rawDir, top)
		}
	}
	return byLabel, root, nil
}

// ExtractImages writes the supported image entries of zipPath below destDir
// and returns how many files were written. Entries that would land outside
// destDir are rejected.
func ExtractImages(zipPath, destDir string) (int, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: zip file not found: %s", errs.ErrNotFound, zipPath)
		}
		return 0, fmt.Errorf("cannot open zip %s: %w", zipPath, err)
	}
	defer zr.Close()

	base, err := filepath.Abs(destDir)
	if err != nil {
		return 0, err
	}
	var written int
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") || !IsImageName(f.Name) {
			continue
		}
		target := filepath.Join(base, filepath.FromSlash(f.Name))
		if target != base && !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return written, fmt.Errorf("zip entry escapes destination: %s", f.Name)
		}
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := extractFile(f, target); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(target), err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("cannot open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("cannot extract %s: %w", f.Name, err)
	}
	return out.Close()
}
