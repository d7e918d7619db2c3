package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/logging"
)

// Options controls WriteSplits.
type Options struct {
	// RawDir holds the extracted dataset (or is where archive entries map to).
	RawDir string
	// SplitsDir receives train.txt, val.txt, test.txt and metadata.json.
	SplitsDir string
	// ZipPath is an optional archive scanned when RawDir has no dataset.
	ZipPath string
	// BaseDir anchors relative paths and manifest entries. Defaults to the
	// working directory.
	BaseDir string
	Seed    int64
	Ratios  Ratios
	// Extract unpacks ZipPath's images into RawDir before scanning.
	Extract bool
}

// WriteSplits discovers the dataset, partitions it and writes the manifests
// and metadata. Running it twice with the same inputs yields identical files.
func WriteSplits(opts Options) (*Metadata, error) {
	if err := opts.Ratios.Validate(); err != nil {
		return nil, err
	}
	base := opts.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine working directory: %w", err)
		}
		base = wd
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	rawDir := absUnder(base, opts.RawDir)
	splitsDir := absUnder(base, opts.SplitsDir)
	log := logging.L()

	if opts.Extract && opts.ZipPath != "" {
		n, err := ExtractImages(absUnder(base, opts.ZipPath), rawDir)
		if err != nil {
			return nil, err
		}
		log.Info("extracted archive images", zap.Int("files", n), zap.String("raw_dir", rawDir))
	}

	byLabel, root, err := CollectDirectory(rawDir)
	source := DataSource{Type: SourceFilesystem}
	switch {
	case err == nil:
		source.Path = displayPath(base, root)
	case errors.Is(err, errs.ErrNotFound) && opts.ZipPath != "":
		zipPath := absUnder(base, opts.ZipPath)
		log.Info("raw directory has no dataset, scanning archive",
			zap.String("raw_dir", rawDir), zap.String("zip", zipPath), zap.NamedError("cause", err))
		byLabel, root, err = CollectArchive(zipPath, rawDir)
		if err != nil {
			return nil, err
		}
		source = DataSource{Type: SourceArchive, Path: displayPath(base, zipPath)}
	default:
		return nil, err
	}

	display := make(map[string][]string, len(byLabel))
	for label, paths := range byLabel {
		for _, p := range paths {
			display[label] = append(display[label], displayPath(base, p))
		}
	}
	splits := StratifiedSplit(display, opts.Seed, opts.Ratios)

	if err := os.MkdirAll(splitsDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create splits dir %s: %w", splitsDir, err)
	}

	md := &Metadata{
		ClassToIndex:      ClassToIndex,
		Counts:            map[string]int{},
		CountsByClass:     map[string]map[string]int{},
		DataSource:        source,
		DatasetRoot:       displayPath(base, root),
		LabelInference:    labelInferenceRule,
		ManifestFormat:    ManifestFormat,
		Ratios:            opts.Ratios,
		RawDir:            displayPath(base, rawDir),
		Seed:              opts.Seed,
		SupportedSuffixes: append([]string(nil), SupportedSuffixes...),
	}
	for _, sp := range Splits {
		items := splits[sp]
		if err := WriteManifest(filepath.Join(splitsDir, ManifestName(sp)), items); err != nil {
			return nil, err
		}
		byClass := map[string]int{}
		for _, label := range Labels() {
			byClass[label] = 0
		}
		for _, s := range items {
			byClass[s.Label]++
		}
		md.Counts[string(sp)] = len(items)
		md.CountsByClass[string(sp)] = byClass
	}
	if err := WriteMetadata(splitsDir, md); err != nil {
		return nil, err
	}

	log.Info("wrote split manifests",
		zap.String("splits_dir", splitsDir),
		zap.Int("train", md.Counts[string(SplitTrain)]),
		zap.Int("val", md.Counts[string(SplitVal)]),
		zap.Int("test", md.Counts[string(SplitTest)]))
	return md, nil
}

func absUnder(base, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
