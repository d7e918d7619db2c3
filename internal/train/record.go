package train

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kamusis/catsdogs/internal/evaluate"
)

const (
	paramsFile  = "params.json"
	metricsFile = "metrics.json"
)

// Params are the logged parameters of one training run.
type Params struct {
	Experiment     string `json:"experiment"`
	RunName        string `json:"run_name"`
	Seed           int64  `json:"seed"`
	Epochs         int    `json:"epochs"`
	BatchSize      int    `json:"batch_size"`
	FeatureBins    int    `json:"feature_bins"`
	Augmentations  int    `json:"augmentations_per_image"`
	ImageSize      string `json:"image_size"`
	ModelType      string `json:"model_type"`
	Device         string `json:"device"`
	TrainSamples   int    `json:"train_samples"`
	ValSamples     int    `json:"val_samples"`
	TestSamples    int    `json:"test_samples"`
	SkippedTrain   int    `json:"skipped_train"`
	SkippedVal     int    `json:"skipped_val"`
	SkippedTest    int    `json:"skipped_test"`
	SplitSeed      int64  `json:"split_seed"`
	DatasetRoot    string `json:"dataset_root"`
	DataSourceType string `json:"data_source_type"`
	DataSourcePath string `json:"data_source_path"`
}

// RunMetrics is the per-epoch history plus the final split metrics.
type RunMetrics struct {
	History History          `json:"history"`
	Val     evaluate.Metrics `json:"val"`
	Test    evaluate.Metrics `json:"test"`
}

// WriteRecord writes params.json and metrics.json into dir.
func WriteRecord(dir string, p Params, m RunMetrics) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create run dir %s: %w", dir, err)
	}
	for name, v := range map[string]any{paramsFile: p, metricsFile: m} {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			return fmt.Errorf("cannot write %s: %w", name, err)
		}
	}
	return nil
}

// ReadRecord loads a run record written by WriteRecord.
func ReadRecord(dir string) (*Params, *RunMetrics, error) {
	var p Params
	var m RunMetrics
	for name, v := range map[string]any{paramsFile: &p, metricsFile: &m} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal(b, v); err != nil {
			return nil, nil, fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return &p, &m, nil
}
