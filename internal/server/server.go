package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kamusis/catsdogs/internal/errs"
	"github.com/kamusis/catsdogs/internal/predict"
)

// AppName is reported by /health.
const AppName = "catsdogs-api"

// DefaultMaxUploadBytes bounds a /predict request body when Options leaves it unset.
const DefaultMaxUploadBytes = 10 << 20

// Prediction is the /predict response body.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Options configures New.
type Options struct {
	Service *Service
	// Cache is optional.
	Cache          PredictionCache
	Metrics        *Metrics
	Logger         *zap.Logger
	MaxUploadBytes int64
}

// Server routes HTTP requests to the service.
type Server struct {
	svc       *Service
	cache     PredictionCache
	metrics   *Metrics
	log       *zap.Logger
	maxUpload int64
	engine    *gin.Engine
}

// New builds the router. Call gin.SetMode before New to pick the gin mode.
func New(opts Options) *Server {
	s := &Server{
		svc:       opts.Service,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		maxUpload: opts.MaxUploadBytes,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.metrics.Middleware())
	r.Use(requestLogger(s.log))
	r.Use(cors())

	r.GET("/health", s.health)
	r.POST("/predict", s.predict)
	r.POST("/reload", s.reload)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	s.engine = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) healthBody() (int, gin.H) {
	b, err := s.svc.Bundle()
	if err != nil {
		return http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()}
	}
	return http.StatusOK, gin.H{
		"status":           "ok",
		"app":              AppName,
		"model_path":       s.svc.ModelPath(),
		"model_created_at": b.CreatedAt,
		"model_loaded_at":  s.svc.LoadedAt(),
		"run_id":           b.RunID,
		"schema_version":   b.SchemaVersion,
		"versions":         b.Versions,
		"build_info":       b.BuildInfo,
		"class_mapping":    b.ClassToIndex,
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(s.healthBody())
}

func (s *Server) reload(c *gin.Context) {
	if err := s.svc.Reload(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(s.healthBody())
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (s *Server) predict(c *gin.Context) {
	b, err := s.svc.Bundle()
	if err != nil {
		detail(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			detail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUpload))
			return
		}
		detail(c, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	if ct := fh.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		detail(c, http.StatusBadRequest, "File must be an image.")
		return
	}
	f, err := fh.Open()
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	key := CacheKey(b.RunID, payload)
	if s.cache != nil && len(payload) > 0 {
		hit, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("prediction cache read failed", zap.Error(err))
		} else if hit != nil {
			c.Header("X-Cache", "HIT")
			c.JSON(http.StatusOK, hit)
			return
		}
	}

	res, err := predict.Bytes(b, payload)
	if err != nil {
		status := errs.HTTPStatus(err)
		if status == http.StatusBadRequest {
			detail(c, status, "Invalid image payload: "+err.Error())
			return
		}
		_ = c.Error(err)
		detail(c, status, err.Error())
		return
	}
	out := &Prediction{Label: res.Label, Probability: res.Probability}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, out); err != nil {
			s.log.Warn("prediction cache write failed", zap.Error(err))
		}
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, out)
}
