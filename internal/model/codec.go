package model

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/features"
	"github.com/kamusis/catsdogs/internal/imaging"
)

// magic starts every bundle file.
var magic = []byte("CATSDOGS\x00BUNDLE\n")

const kindSGD = "sgd"

type fileHeader struct {
	SchemaVersion  int
	ClassifierKind string
}

type sgdState struct {
	Loss      string
	Alpha     float64
	Classes   []int
	Coef      [][]float64
	Intercept []float64
	T         float64
}

type bundleV1 struct {
	Classifier      sgdState
	ProbabilityMode string
	ClassToIndex    map[string]int
	IndexToClass    map[int]string
	FeatureBins     int
	Preprocess      imaging.PreprocessConfig
	Training        TrainingConfig
	Metrics         map[string]map[string]float64
	CreatedAt       time.Time
	RunID           string
	Versions        map[string]string
	BuildInfo       map[string]string
}

// Encode writes b in the bundle file format: a magic header followed by a gob
// stream of a versioned header and a body of plain fields.
func Encode(w io.Writer, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	sgd, ok := b.Classifier.(*SGDClassifier)
	if !ok {
		return fmt.Errorf("%w: cannot persist classifier type %T", errs.ErrBundleType, b.Classifier)
	}
	body := bundleV1{
		Classifier: sgdState{
			Loss:      sgd.Loss,
			Alpha:     sgd.Alpha,
			Classes:   sgd.ClassList,
			Coef:      sgd.Coef,
			Intercept: sgd.Intercept,
			T:         sgd.T,
		},
		ProbabilityMode: string(b.ProbabilityMode),
		ClassToIndex:    b.ClassToIndex,
		IndexToClass:    b.IndexToClass,
		FeatureBins:     b.FeatureConfig.Bins,
		Preprocess:      b.PreprocessConfig,
		Training:        b.TrainingConfig,
		Metrics:         b.Metrics,
		CreatedAt:       b.CreatedAt,
		RunID:           b.RunID,
		Versions:        b.Versions,
		BuildInfo:       b.BuildInfo,
	}

	if _, err := w.Write(magic); err != nil {
		return err
	}
	enc := gob.NewEncoder(w)
	if err := enc.Encode(fileHeader{SchemaVersion: SchemaVersion, ClassifierKind: kindSGD}); err != nil {
		return fmt.Errorf("cannot encode bundle header: %w", err)
	}
	if err := enc.Encode(body); err != nil {
		return fmt.Errorf("cannot encode bundle: %w", err)
	}
	return nil
}

// Decode reads a bundle written by Encode and validates it. Any mismatch
// with the expected layout wraps errs.ErrBundleType.
func Decode(r io.Reader) (*Bundle, error) {
	br := bufio.NewReader(r)
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil || !bytes.Equal(head, magic) {
		return nil, fmt.Errorf("%w: not a model bundle", errs.ErrBundleType)
	}

	dec := gob.NewDecoder(br)
	var hdr fileHeader
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("%w: unreadable bundle header: %v", errs.ErrBundleType, err)
	}
	if hdr.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", errs.ErrBundleType, hdr.SchemaVersion)
	}
	if hdr.ClassifierKind != kindSGD {
		return nil, fmt.Errorf("%w: unknown classifier kind %q", errs.ErrBundleType, hdr.ClassifierKind)
	}

	var body bundleV1
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: unreadable bundle body: %v", errs.ErrBundleType, err)
	}
	clf, err := body.Classifier.classifier()
	if err != nil {
		return nil, err
	}
	b := &Bundle{
		Classifier:       clf,
		ProbabilityMode:  ProbabilityMode(body.ProbabilityMode),
		ClassToIndex:     body.ClassToIndex,
		IndexToClass:     body.IndexToClass,
		FeatureConfig:    features.Config{Bins: body.FeatureBins},
		PreprocessConfig: body.Preprocess,
		TrainingConfig:   body.Training,
		Metrics:          body.Metrics,
		CreatedAt:        body.CreatedAt,
		RunID:            body.RunID,
		Versions:         body.Versions,
		BuildInfo:        body.BuildInfo,
		SchemaVersion:    hdr.SchemaVersion,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (s sgdState) classifier() (*SGDClassifier, error) {
	if s.Loss != LossLog && s.Loss != LossHinge {
		return nil, fmt.Errorf("%w: unknown loss %q", errs.ErrBundleType, s.Loss)
	}
	if s.Alpha <= 0 {
		return nil, fmt.Errorf("%w: alpha must be positive", errs.ErrBundleType)
	}
	if len(s.Classes) < 2 {
		return nil, fmt.Errorf("%w: classifier has %d classes", errs.ErrBundleType, len(s.Classes))
	}
	rows := len(s.Classes)
	if rows == 2 {
		rows = 1
	}
	if len(s.Coef) != rows || len(s.Intercept) != rows {
		return nil, fmt.Errorf("%w: classifier has %d weight rows and %d intercepts, want %d",
			errs.ErrBundleType, len(s.Coef), len(s.Intercept), rows)
	}
	for _, w := range s.Coef {
		if len(w) != len(s.Coef[0]) || len(w) == 0 {
			return nil, fmt.Errorf("%w: ragged classifier weights", errs.ErrBundleType)
		}
	}
	return &SGDClassifier{
		Loss:      s.Loss,
		Alpha:     s.Alpha,
		ClassList: s.Classes,
		Coef:      s.Coef,
		Intercept: s.Intercept,
		T:         s.T,
	}, nil
}
