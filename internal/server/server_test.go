package server_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/catsdogs/internal/config"
	"github.com/kamusis/catsdogs/internal/dataset"
	"github.com/kamusis/catsdogs/internal/features"
	"github.com/kamusis/catsdogs/internal/imaging"
	"github.com/kamusis/catsdogs/internal/model"
	"github.com/kamusis/catsdogs/internal/server"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// redBlueBundle scores the red high bin toward cat and the blue high bin toward dog.
func redBlueBundle(runID string) *model.Bundle {
	clf := &model.SGDClassifier{
		Loss:      model.LossLog,
		Alpha:     model.DefaultAlpha,
		ClassList: []int{0, 1},
		Coef:      [][]float64{{0, -3, 0, 0, 0, 3}},
		Intercept: []float64{0},
		T:         1,
	}
	return &model.Bundle{
		Classifier:       clf,
		ProbabilityMode:  model.NativeProbability,
		ClassToIndex:     dataset.ClassToIndex,
		IndexToClass:     dataset.IndexToClass(),
		FeatureConfig:    features.Config{Bins: 2},
		PreprocessConfig: imaging.PreprocessConfig{Width: 8, Height: 8, Normalize: true, DType: imaging.DTypeFloat32},
		CreatedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		RunID:            runID,
		Versions:         map[string]string{"go": "go1.25"},
		BuildInfo:        map[string]string{"git_sha": "unknown"},
		SchemaVersion:    model.SchemaVersion,
	}
}

func emptyGIF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 0, 0), color.Palette{color.Black}), nil))
	return buf.Bytes()
}

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	red  = color.RGBA{R: 240, A: 255}
	blue = color.RGBA{B: 240, A: 255}
)

func upload(t *testing.T, field, contentType string, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="pet.png"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newServer(b *model.Bundle, cache server.PredictionCache) *server.Server {
	svc := server.NewServiceWithBundle("artifacts/model/model.bundle", b)
	return server.New(server.Options{Service: svc, Cache: cache})
}

func TestHealth(t *testing.T) {
	h := newServer(redBlueBundle("run-1"), nil).Handler()
	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, server.AppName, body["app"])
	assert.Equal(t, "artifacts/model/model.bundle", body["model_path"])
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, float64(model.SchemaVersion), body["schema_version"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body["model_created_at"])
	loadedAt, err := time.Parse(time.RFC3339Nano, body["model_loaded_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), loadedAt, time.Minute)
	assert.Equal(t, map[string]any{"cat": float64(0), "dog": float64(1)}, body["class_mapping"])
	assert.Equal(t, map[string]any{"git_sha": "unknown"}, body["build_info"])
}

func TestHealth_NoModel(t *testing.T) {
	svc := server.NewService(filepath.Join(t.TempDir(), "missing.bundle"))
	h := server.New(server.Options{Service: svc}).Handler()

	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["error"], "not found")

	rec = do(h, upload(t, "file", "image/png", solidPNG(t, red)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPredict(t *testing.T) {
	h := newServer(redBlueBundle("run-1"), nil).Handler()

	rec := do(h, upload(t, "file", "image/png", solidPNG(t, red)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "cat", body["label"])
	assert.InDelta(t, 1/(1+0.049787068367863944), body["probability"], 1e-9)
	assert.Len(t, body, 2)

	rec = do(h, upload(t, "file", "", solidPNG(t, blue)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "dog", decode(t, rec)["label"])
}

func TestPredict_BadRequests(t *testing.T) {
	h := newServer(redBlueBundle("run-1"), nil).Handler()

	cases := []struct {
		name   string
		req    *http.Request
		detail string
	}{
		{"non-image content type", upload(t, "file", "text/plain", []byte("hello")), "File must be an image."},
		{"empty payload", upload(t, "file", "image/png", nil), "Invalid image payload"},
		{"undecodable payload", upload(t, "file", "image/png", []byte("not a png")), "Invalid image payload"},
		{"zero-sized image", upload(t, "file", "image/gif", emptyGIF(t)), "Invalid image payload"},
		{"missing field", upload(t, "image", "image/png", solidPNG(t, red)), `"file"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h, tc.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode(t, rec)["detail"], tc.detail)
		})
	}
}

func TestPredict_UploadLimit(t *testing.T) {
	svc := server.NewServiceWithBundle("m", redBlueBundle("run-1"))
	h := server.New(server.Options{Service: svc, MaxUploadBytes: 64}).Handler()

	rec := do(h, upload(t, "file", "image/png", bytes.Repeat([]byte{1}, 4096)))
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge}, rec.Code)
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model", "model.bundle")
	svc := server.NewService(path)
	h := server.New(server.Options{Service: svc}).Handler()

	rec := do(h, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, model.Save(path, redBlueBundle("run-2")))
	rec = do(h, httptest.NewRequest(http.MethodPost, "/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reloaded := decode(t, rec)
	assert.Equal(t, "run-2", reloaded["run_id"])
	assert.Equal(t, svc.LoadedAt().Format(time.RFC3339Nano), reloaded["model_loaded_at"])

	// A broken file does not take down the bundle already in service.
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	rec = do(h, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "bundle")

	rec = do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	health := decode(t, rec)
	assert.Equal(t, "run-2", health["run_id"])
	assert.Equal(t, reloaded["model_loaded_at"], health["model_loaded_at"])
}

func TestMetrics(t *testing.T) {
	h := newServer(redBlueBundle("run-1"), nil).Handler()
	do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	do(h, upload(t, "file", "text/plain", []byte("x")))

	rec := do(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	text := rec.Body.String()
	assert.Contains(t, text, `http_requests_total{endpoint="/health",http_status="200",method="GET"} 1`)
	assert.Contains(t, text, `http_requests_total{endpoint="/predict",http_status="400",method="POST"} 1`)
	assert.Contains(t, text, `http_request_duration_seconds_count{endpoint="/health",method="GET"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	h := newServer(redBlueBundle("run-1"), nil).Handler()
	rec := do(h, httptest.NewRequest(http.MethodOptions, "/predict", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPredict_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := server.NewRedisCache(config.RedisConfig{Addr: mr.Addr(), TTL: time.Hour})
	t.Cleanup(func() { _ = cache.Close() })
	h := newServer(redBlueBundle("run-1"), cache).Handler()
	payload := solidPNG(t, red)

	rec := do(h, upload(t, "file", "image/png", payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	key := server.CacheKey("run-1", payload)
	assert.True(t, strings.HasPrefix(key, "prediction:run-1:"))
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	rec = do(h, upload(t, "file", "image/png", payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "cat", decode(t, rec)["label"])

	// A different bundle never reads another bundle's entries.
	h2 := newServer(redBlueBundle("run-2"), cache).Handler()
	rec = do(h2, upload(t, "file", "image/png", payload))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestRedisCache_Miss(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := server.NewRedisCache(config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	require.NoError(t, cache.Ping(t.Context()))
	got, err := cache.Get(t.Context(), "prediction:none")
	require.NoError(t, err)
	assert.Nil(t, got)
}
