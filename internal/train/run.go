package train

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/evaluate"
	"github.com/kamusis/catsdogs/internal/features"
	"github.com/kamusis/catsdogs/internal/featureset"
	"github.com/kamusis/catsdogs/internal/imaging"
	"github.com/kamusis/catsdogs/internal/logging"
	"github.com/kamusis/catsdogs/internal/model"
)

// Options controls Run. Relative directories are resolved against BaseDir.
type Options struct {
	BaseDir      string
	SplitsDir    string
	ArtifactsDir string

	Epochs        int
	BatchSize     int
	Bins          int
	Augmentations int
	ImageSize     int
	Seed          int64
	Loss          string
	Alpha         float64

	Experiment string
	RunName    string
	Device     string
	// Cache keeps per-split feature caches under <artifacts>/cache.
	Cache bool

	// Version and GitSHA end up in the bundle's versions and build_info.
	Version string
	GitSHA  string

	OnEpoch func(epoch int, trainAcc, valAcc float64)
}

// Report summarizes a finished run.
type Report struct {
	RunID      string
	RunName    string
	ModelPath  string
	FiguresDir string
	RunDir     string
	History    *History
	Val        *evaluate.Result
	Test       *evaluate.Result
	Train      *featureset.Set
	Bundle     *model.Bundle
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return p
	}
	return filepath.Join(base, p)
}

// Run trains on the split manifests and writes the bundle, figures and run
// record below ArtifactsDir.
func Run(opts Options) (*Report, error) {
	log := logging.L()
	base := opts.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine working directory: %w", err)
		}
		base = wd
	}
	splitsDir := resolve(base, opts.SplitsDir)
	artifactsDir := resolve(base, opts.ArtifactsDir)
	figuresDir := filepath.Join(artifactsDir, "figures")
	modelPath := filepath.Join(artifactsDir, "model", model.DefaultFileName)

	md, err := dataset.ReadMetadata(splitsDir)
	if err != nil {
		return nil, err
	}
	if opts.Device != "" && opts.Device != "cpu" {
		log.Warn("requested device is not available, training runs on CPU", zap.String("device", opts.Device))
	}

	samples := make(map[dataset.Split][]dataset.Sample, len(dataset.Splits))
	for _, sp := range dataset.Splits {
		s, err := dataset.ReadManifest(filepath.Join(splitsDir, dataset.ManifestName(sp)))
		if err != nil {
			return nil, err
		}
		samples[sp] = s
	}

	pre := imaging.PreprocessConfig{Width: opts.ImageSize, Height: opts.ImageSize, Normalize: true, DType: imaging.DTypeFloat32}
	feat := features.Config{Bins: opts.Bins}
	sets := make(map[dataset.Split]*featureset.Set, len(dataset.Splits))
	for _, sp := range dataset.Splits {
		fo := featureset.Options{BaseDir: base, Preprocess: pre, Features: feat, Seed: opts.Seed}
		if sp == dataset.SplitTrain {
			fo.Augment = true
			fo.Augmentations = opts.Augmentations
		}
		if opts.Cache {
			fo.CacheDir = filepath.Join(artifactsDir, "cache", string(sp))
		}
		set, err := featureset.Build(samples[sp], fo)
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", sp, err)
		}
		sets[sp] = set
		log.Info("feature matrix ready",
			zap.String("split", string(sp)), zap.Int("rows", set.Len()),
			zap.Int("skipped", set.Skipped), zap.Int("reused", set.Reused))
	}

	clf, hist, err := Fit(sets[dataset.SplitTrain], sets[dataset.SplitVal], FitConfig{
		Epochs:    opts.Epochs,
		BatchSize: opts.BatchSize,
		Seed:      opts.Seed,
		Loss:      opts.Loss,
		Alpha:     opts.Alpha,
		OnEpoch:   opts.OnEpoch,
	})
	if err != nil {
		return nil, err
	}

	if err := PlotHistory(hist, filepath.Join(figuresDir, "training_curve.png")); err != nil {
		return nil, err
	}
	names := dataset.Labels()
	results := make(map[dataset.Split]*evaluate.Result, 2)
	for _, sp := range []dataset.Split{dataset.SplitVal, dataset.SplitTest} {
		res, err := evaluate.FromFeatures(clf, sets[sp], names)
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", sp, err)
		}
		if err := res.WriteFigure(figuresDir, string(sp), names); err != nil {
			return nil, err
		}
		results[sp] = res
	}

	runID := uuid.NewString()
	runName := opts.RunName
	if runName == "" {
		runName = "baseline-" + time.Now().UTC().Format("20060102-150405")
	}
	b := &model.Bundle{
		Classifier:       clf,
		ProbabilityMode:  clf.Mode(),
		ClassToIndex:     dataset.ClassToIndex,
		IndexToClass:     dataset.IndexToClass(),
		FeatureConfig:    feat,
		PreprocessConfig: pre,
		TrainingConfig: model.TrainingConfig{
			Seed:          opts.Seed,
			Epochs:        opts.Epochs,
			BatchSize:     opts.BatchSize,
			Augmentations: opts.Augmentations,
			FeatureBins:   opts.Bins,
			Device:        deviceOrCPU(opts.Device),
			Loss:          clf.Loss,
			Alpha:         clf.Alpha,
		},
		Metrics: map[string]map[string]float64{
			string(dataset.SplitVal):  results[dataset.SplitVal].Metrics.Map(),
			string(dataset.SplitTest): results[dataset.SplitTest].Metrics.Map(),
		},
		CreatedAt:     time.Now().UTC(),
		RunID:         runID,
		Versions:      versions(opts.Version),
		BuildInfo:     map[string]string{"git_sha": gitSHA(opts.GitSHA)},
		SchemaVersion: model.SchemaVersion,
	}
	if err := model.Save(modelPath, b); err != nil {
		return nil, err
	}

	runDir := filepath.Join(artifactsDir, "runs", runID)
	params := Params{
		Experiment:     opts.Experiment,
		RunName:        runName,
		Seed:           opts.Seed,
		Epochs:         opts.Epochs,
		BatchSize:      opts.BatchSize,
		FeatureBins:    opts.Bins,
		Augmentations:  opts.Augmentations,
		ImageSize:      fmt.Sprintf("%dx%d", pre.Width, pre.Height),
		ModelType:      fmt.Sprintf("SGDClassifier(%s)", clf.Loss),
		Device:         deviceOrCPU(opts.Device),
		TrainSamples:   sets[dataset.SplitTrain].Len(),
		ValSamples:     sets[dataset.SplitVal].Len(),
		TestSamples:    sets[dataset.SplitTest].Len(),
		SkippedTrain:   sets[dataset.SplitTrain].Skipped,
		SkippedVal:     sets[dataset.SplitVal].Skipped,
		SkippedTest:    sets[dataset.SplitTest].Skipped,
		SplitSeed:      md.Seed,
		DatasetRoot:    md.DatasetRoot,
		DataSourceType: md.DataSource.Type,
		DataSourcePath: md.DataSource.Path,
	}
	runMetrics := RunMetrics{
		History: *hist,
		Val:     results[dataset.SplitVal].Metrics,
		Test:    results[dataset.SplitTest].Metrics,
	}
	if err := WriteRecord(runDir, params, runMetrics); err != nil {
		return nil, err
	}

	log.Info("training complete",
		zap.String("run_id", runID), zap.String("run_name", runName),
		zap.String("model", modelPath),
		zap.Float64("val_accuracy", results[dataset.SplitVal].Metrics.Accuracy),
		zap.Float64("test_accuracy", results[dataset.SplitTest].Metrics.Accuracy))

	return &Report{
		RunID:      runID,
		RunName:    runName,
		ModelPath:  modelPath,
		FiguresDir: figuresDir,
		RunDir:     runDir,
		History:    hist,
		Val:        results[dataset.SplitVal],
		Test:       results[dataset.SplitTest],
		Train:      sets[dataset.SplitTrain],
		Bundle:     b,
	}, nil
}

func deviceOrCPU(d string) string {
	if d == "" {
		return "cpu"
	}
	return d
}

// versions records the toolchain and the direct dependencies that shape the
// model file.
func versions(appVersion string) map[string]string {
	out := map[string]string{"go": runtime.Version()}
	if appVersion != "" {
		out["catsdogs"] = appVersion
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			switch dep.Path {
			case "gonum.org/v1/plot", "github.com/nfnt/resize", "golang.org/x/image":
				out[dep.Path] = dep.Version
			}
		}
	}
	return out
}

func gitSHA(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
