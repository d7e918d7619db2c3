// Package server is the HTTP wrapper around a loaded model bundle.
package server

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/logging"
	"github.com/kamusis/catsdogs/internal/model"
)

// Service holds the bundle being served. The bundle itself is never mutated;
// Reload swaps the pointer under the write lock.
type Service struct {
	modelPath string
	load      func(string) (*model.Bundle, error)

	mu       sync.RWMutex
	bundle   *model.Bundle
	loadErr  error
	loadedAt time.Time
}

// NewService loads the bundle at modelPath. A load failure is not returned:
// the service starts without a model and reports the error from Bundle.
func NewService(modelPath string) *Service {
	s := &Service{modelPath: modelPath, load: model.Load}
	_ = s.Reload()
	return s
}

// NewServiceWithBundle serves b without touching the filesystem until Reload.
func NewServiceWithBundle(modelPath string, b *model.Bundle) *Service {
	return &Service{modelPath: modelPath, load: model.Load, bundle: b, loadedAt: time.Now()}
}

// ModelPath returns the configured bundle path.
func (s *Service) ModelPath() string { return s.modelPath }

// Bundle returns the current bundle, or the reason none is loaded.
func (s *Service) Bundle() (*model.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bundle == nil {
		if s.loadErr != nil {
			return nil, s.loadErr
		}
		return nil, fmt.Errorf("%w: model not loaded", errs.ErrNotFound)
	}
	return s.bundle, nil
}

// LoadedAt reports when the current bundle was installed.
func (s *Service) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Reload reads the bundle from the model path again. On failure a previously
// loaded bundle stays in service and the error is returned.
func (s *Service) Reload() error {
	log := logging.L()
	b, err := s.load(s.modelPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.bundle == nil {
			s.loadErr = err
		}
		log.Warn("model load failed", zap.String("path", s.modelPath), zap.Error(err))
		return err
	}
	s.bundle = b
	s.loadErr = nil
	s.loadedAt = time.Now()
	log.Info("model loaded",
		zap.String("path", s.modelPath),
		zap.String("run_id", b.RunID),
		zap.Int("schema_version", b.SchemaVersion))
	return nil
}
