package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamusis/catsdogs/internal/errs"
)

var errFound = errors.New("found")

// hasClassDirs reports whether dir directly contains a cat/cats folder and a
// dog/dogs folder (case-insensitive).
func hasClassDirs(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	var cat, dog bool
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		switch label, _ := segmentLabel(e.Name()); label {
		case LabelCat:
			cat = true
		case LabelDog:
			dog = true
		}
	}
	return cat && dog
}

// FindRoot locates the dataset root under rawDir: rawDir itself when it holds
// both class folders, otherwise the first descendant (in lexical walk order)
// that does.
func FindRoot(rawDir string) (string, error) {
	info, err := os.Stat(rawDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: raw data directory does not exist: %s", errs.ErrNotFound, rawDir)
		}
		return "", fmt.Errorf("cannot stat raw data directory %s: %w", rawDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: raw data path is not a directory: %s", errs.ErrNotFound, rawDir)
	}
	if hasClassDirs(rawDir) {
		return rawDir, nil
	}

	var root string
	walkFn := func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() || p == rawDir {
			return nil
		}
		if hasClassDirs(p) {
			root = p
			return errFound
		}
		return nil
	}
	if err := filepath.WalkDir(rawDir, walkFn); err != nil && !errors.Is(err, errFound) {
		return "", fmt.Errorf("cannot scan %s: %w", rawDir, err)
	}
	if root == "" {
		return "", fmt.Errorf("%w: could not find class directories under %s, expected cat/dog folders", errs.ErrNotFound, rawDir)
	}
	return root, nil
}

// CollectDirectory discovers labeled images under the dataset root found in
// rawDir. Labels are inferred from the path segments below rawDir; files
// without a class segment are skipped.
func CollectDirectory(rawDir string) (map[string][]string, string, error) {
	root, err := FindRoot(rawDir)
	if err != nil {
		return nil, "", err
	}

	byLabel := map[string][]string{LabelCat: {}, LabelDog: {}}
	var n int
	walkFn := func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsImageName(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(rawDir, p)
		if err != nil {
			return err
		}
		label, ok := InferLabel(strings.Split(filepath.ToSlash(rel), "/"))
		if !ok {
			return nil
		}
		byLabel[label] = append(byLabel[label], p)
		n++
		return nil
	}
	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, "", fmt.Errorf("cannot scan dataset root %s: %w", root, err)
	}
	if n == 0 {
		return nil, "", fmt.Errorf("%w: no images found under %s", errs.ErrNotFound, root)
	}
	return byLabel, root, nil
}
