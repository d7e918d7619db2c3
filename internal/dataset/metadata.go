package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kamusis/catsdogs/internal/errs"
)

// MetadataFile is the metadata file name inside the splits directory.
const MetadataFile = "metadata.json"

const (
	SourceFilesystem = "filesystem"
	SourceArchive    = "archive"
)

// DataSource records where the samples were discovered.
type DataSource struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// Metadata describes one split run. Fields are declared in key order so the
// JSON output is sorted.
type Metadata struct {
	ClassToIndex      map[string]int            `json:"class_to_index"`
	Counts            map[string]int            `json:"counts"`
	CountsByClass     map[string]map[string]int `json:"counts_by_class"`
	DataSource        DataSource                `json:"data_source"`
	DatasetRoot       string                    `json:"dataset_root"`
	LabelInference    string                    `json:"label_inference"`
	ManifestFormat    string                    `json:"manifest_format"`
	Ratios            Ratios                    `json:"ratios"`
	RawDir            string                    `json:"raw_dir"`
	Seed              int64                     `json:"seed"`
	SupportedSuffixes []string                  `json:"supported_suffixes"`
}

// WriteMetadata writes md as indented JSON to dir/metadata.json.
func WriteMetadata(dir string, md *Metadata) error {
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	p := filepath.Join(dir, MetadataFile)
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return fmt.Errorf("cannot write metadata %s: %w", p, err)
	}
	return nil
}

// ReadMetadata loads dir/metadata.json.
func ReadMetadata(dir string) (*Metadata, error) {
	p := filepath.Join(dir, MetadataFile)
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: expected metadata at %s", errs.ErrNotFound, p)
		}
		return nil, fmt.Errorf("cannot read metadata %s: %w", p, err)
	}
	var md Metadata
	if err := json.Unmarshal(b, &md); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON %s: %w", p, err)
	}
	return &md, nil
}
