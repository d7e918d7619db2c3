// Package errs defines the error kinds shared by every pipeline stage.
//
// Callers wrap a kind with context (fmt.Errorf("...: %w", errs.ErrDecode)) and
// test for it with errors.Is.
package errs

import (
	"errors"
	"net/http"
)

var (
	// ErrDecode indicates bytes that are not a valid image.
	ErrDecode = errors.New("decode error")
	// ErrShape indicates a malformed feature-extractor input.
	ErrShape = errors.New("shape error")
	// ErrNotFound indicates missing raw data, archive, manifest or model file.
	ErrNotFound = errors.New("not found")
	// ErrEmptyDataset indicates a manifest that produced no usable samples.
	ErrEmptyDataset = errors.New("empty dataset")
	// ErrEmptyPayload indicates an empty prediction input.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrConfig indicates invalid configuration such as split ratios not summing to 1.
	ErrConfig = errors.New("config error")
	// ErrBundleType indicates a file that does not decode to a valid model bundle.
	ErrBundleType = errors.New("bundle type error")
)

// HTTPStatus maps an error kind to the status code the serving wrapper returns.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyPayload), errors.Is(err, ErrDecode), errors.Is(err, ErrShape):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBundleType):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
