package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kamusis/catsdogs/internal/logging"
	"github.com/kamusis/catsdogs/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions over HTTP",
	Long: `Start the HTTP server.

Endpoints:
  GET  /health    model and build information (503 when no model is loaded)
  POST /predict   multipart upload in field "file"
  POST /reload    reload the bundle from the model path
  GET  /metrics   Prometheus metrics

When redis.addr is set, predictions are cached in redis keyed by the model
run id and the upload's MD5.

Example:
  catsdogs serve --addr :8080
  curl -F file=@rex.jpg http://localhost:8080/predict`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	flagServeAddr  string
	flagServeModel string
)

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (default serve.addr)")
	serveCmd.Flags().StringVar(&flagServeModel, "model-path", "", "Model bundle (default serve.model_path)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appConfig.Serve
	if flagServeAddr != "" {
		cfg.Addr = flagServeAddr
	}
	if flagServeModel != "" {
		cfg.ModelPath = flagServeModel
	}
	log := logging.L()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := server.NewService(cfg.ModelPath)

	var cache server.PredictionCache
	if appConfig.Redis.Addr != "" {
		rc := server.NewRedisCache(appConfig.Redis)
		defer rc.Close()
		if err := pingRedis(ctx, rc); err != nil {
			log.Warn("redis connection failed, cache disabled", zap.String("addr", appConfig.Redis.Addr), zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", appConfig.Redis.Addr))
			cache = rc
		}
	}

	gin.SetMode(cfg.Mode)
	srv := server.New(server.Options{
		Service:        svc,
		Cache:          cache,
		Logger:         log,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting",
			zap.String("addr", cfg.Addr),
			zap.String("model_path", cfg.ModelPath),
			zap.String("version", version))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func pingRedis(ctx context.Context, rc *server.RedisCache) error {
	b := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
