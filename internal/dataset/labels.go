// Package dataset discovers labeled images and writes deterministic
// train/val/test split manifests.
package dataset

import (
	"path"
	"strings"
)

const (
	LabelCat = "cat"
	LabelDog = "dog"
)

// ClassToIndex is the fixed class order used by training and inference.
var ClassToIndex = map[string]int{LabelCat: 0, LabelDog: 1}

// Labels returns the class labels ordered by index.
func Labels() []string {
	return []string{LabelCat, LabelDog}
}

// IndexToClass returns the inverse of ClassToIndex.
func IndexToClass() map[int]string {
	out := make(map[int]string, len(ClassToIndex))
	for k, v := range ClassToIndex {
		out[v] = k
	}
	return out
}

// SupportedSuffixes lists the lowercase image extensions that are collected.
var SupportedSuffixes = []string{".jpeg", ".jpg", ".png"}

const labelInferenceRule = "Label inferred from any path segment named cat/cats or dog/dogs (case-insensitive)."

// segmentLabel maps a single path segment to a label.
func segmentLabel(segment string) (string, bool) {
	switch strings.ToLower(segment) {
	case "cat", "cats":
		return LabelCat, true
	case "dog", "dogs":
		return LabelDog, true
	}
	return "", false
}

// InferLabel scans path segments from last to first and returns the label of
// the first class segment found, so the deepest class folder wins.
func InferLabel(parts []string) (string, bool) {
	for i := len(parts) - 1; i >= 0; i-- {
		if label, ok := segmentLabel(parts[i]); ok {
			return label, true
		}
	}
	return "", false
}

// IsImageName reports whether name has a supported image extension.
func IsImageName(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, s := range SupportedSuffixes {
		if ext == s {
			return true
		}
	}
	return false
}
