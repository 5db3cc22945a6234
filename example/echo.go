package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Zereker/rawsocket"
	"github.com/Zereker/rawsocket/internal/config"
	"github.com/Zereker/rawsocket/internal/logging"
	"github.com/Zereker/rawsocket/internal/metrics"
	"github.com/Zereker/rawsocket/serializer"
)

// echoSession sends every message it receives back to the peer.
type echoSession struct {
	logger    *zap.Logger
	transport rawsocket.Transport
}

func (s *echoSession) OnOpen(t rawsocket.Transport) error {
	s.transport = t
	return nil
}

func (s *echoSession) OnMessage(msg rawsocket.Message) error {
	return s.transport.Send(msg)
}

func (s *echoSession) OnClose(wasClean bool) error {
	s.logger.Debug("session closed", zap.Bool("clean", wasClean))
	return nil
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ser, err := serializer.New(cfg.Serializer)
	if err != nil {
		logger.Fatal("failed to create serializer", zap.Error(err))
	}

	newSession := func() (rawsocket.Session, error) {
		return &echoSession{logger: logger}, nil
	}

	collector := metrics.New()
	opts := append(cfg.FactoryOptions(),
		rawsocket.LoggerOption(logging.NewAdapter(logger)),
		rawsocket.MetricsOption(collector))
	factory, err := rawsocket.NewServerFactory(newSession, ser, opts...)
	if err != nil {
		logger.Fatal("failed to create factory", zap.Error(err))
	}

	server, err := rawsocket.Listen(cfg.Listen.Network, cfg.Listen.Address,
		rawsocket.ServerLoggerOption(logging.NewAdapter(logger)))
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}
	defer server.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Address != "" {
		go serveMetrics(ctx, logger, cfg.Metrics.Address, collector)
	}

	logger.Info("server start",
		zap.String("addr", server.Addr().String()),
		zap.String("serializer", cfg.Serializer))
	if err := server.Serve(ctx, factory); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", zap.Error(err))
	}
}

// serveMetrics exposes /metrics and /healthz until ctx is done.
func serveMetrics(ctx context.Context, logger *zap.Logger, addr string, collector *metrics.Collector) {
	gin.SetMode(gin.ReleaseMode)
	routes := gin.New()
	routes.Use(gin.Recovery())
	routes.GET("/metrics", gin.WrapH(collector.Handler()))
	routes.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: addr, Handler: routes, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server start", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", zap.Error(err))
	}
}
