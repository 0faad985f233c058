// Package service 服务装配：配置 -> 基础设施客户端 -> 各层组件 -> HTTP 服务。
package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/aggregation"
	"github.com/chamuda-arangalla/EDUGuard/internal/capture"
	"github.com/chamuda-arangalla/EDUGuard/internal/classifier"
	"github.com/chamuda-arangalla/EDUGuard/internal/config"
	"github.com/chamuda-arangalla/EDUGuard/internal/evaluator"
	httpapi "github.com/chamuda-arangalla/EDUGuard/internal/http"
	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/monitor"
	"github.com/chamuda-arangalla/EDUGuard/internal/mqtt"
	"github.com/chamuda-arangalla/EDUGuard/internal/reports"
	"github.com/chamuda-arangalla/EDUGuard/internal/repository"
	"github.com/chamuda-arangalla/EDUGuard/internal/scheduler"
	"github.com/chamuda-arangalla/EDUGuard/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MonitorService 监控服务（整合各层）
type MonitorService struct {
	config *config.Config
	logger *zap.Logger

	redisClient *redis.Client
	mqttClient  *mqtt.Client
	gateway     repository.Gateway

	engine    *aggregation.Engine
	heartbeat *scheduler.Heartbeat
	registry  *monitor.Registry
	router    *httpapi.Router
	server    *http.Server
}

// NewMonitorService 创建监控服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	s := &MonitorService{
		config: cfg,
		logger: logger,
	}

	// 1. 持久化网关（按后端选择）
	gateway, err := buildGateway(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.gateway = gateway

	// 2. Redis（memory 后端跳过：抑制退化为进程内、无统计缓存）
	var kv store.KVStore
	var publisher store.StreamPublisher
	if cfg.Store.Backend != "memory" {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redisClient.Ping(context.Background()).Err(); err != nil {
			gateway.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		kv = store.NewRedisKVStore(s.redisClient)
		publisher = store.NewRedisStreamPublisher(s.redisClient)
	} else {
		kv = store.NewMemoryKVStore()
	}

	// 3. MQTT（分类器事件传输；连不上时全部会话降级为基线）
	mqttClient, err := mqtt.NewClient(&cfg.MQTT)
	if err != nil {
		logger.Warn("MQTT broker unreachable, classifier sources degraded", zap.Error(err))
		mqttClient = nil
	}
	s.mqttClient = mqttClient

	// 4. 领域组件
	configs := models.DefaultMonitorConfigs()
	window := time.Duration(cfg.Monitor.WindowMinutes) * time.Minute
	for mt, c := range configs {
		c.WindowLength = window
		c.SampleInterval = cfg.Monitor.SampleInterval
		configs[mt] = c
	}

	s.engine = aggregation.NewEngine(logger)
	s.heartbeat = scheduler.NewHeartbeat(logger)

	suppression := evaluator.NewSuppressionStore(kv, cfg.Monitor.AlertCooldown)
	eval := evaluator.NewEvaluator(gateway, suppression, publisher, logger)

	sources := make(map[models.MonitorType]classifier.Source, len(configs))
	for mt, c := range configs {
		if mqttClient != nil {
			sources[mt] = classifier.NewMQTTSource(mqttClient, c, cfg.ModelEnabled(string(mt)), cfg.MQTT.QoS, logger)
		} else {
			sources[mt] = classifier.NewBaselineSource(c, cfg.Monitor.SampleInterval)
		}
	}

	captureManager := capture.NewManager(capture.NewWebcamDevice(cfg.Monitor.CameraDeviceID), logger)

	s.registry = monitor.NewRegistry(monitor.RegistryDeps{
		Configs:           configs,
		Capture:           captureManager,
		Sources:           sources,
		Engine:            s.engine,
		Gateway:           gateway,
		Evaluator:         eval,
		Suppression:       suppression,
		Heartbeat:         s.heartbeat,
		KV:                kv,
		Logger:            logger,
		Window:            window,
		HeartbeatInterval: cfg.Monitor.HeartbeatInterval,
	})

	// 5. HTTP 层
	s.router = httpapi.NewRouter(logger)
	s.router.RegisterMonitorRoutes(httpapi.NewMonitorHandler(s.registry, gateway, kv, cfg.Monitor.WindowMinutes, logger))
	s.router.RegisterReportRoutes(httpapi.NewReportHandler(reports.NewGenerator(gateway, configs, logger), logger))
	s.router.RegisterHealthRoute()

	s.server = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

func buildGateway(cfg *config.Config, logger *zap.Logger) (repository.Gateway, error) {
	switch cfg.Store.Backend {
	case "firebase":
		return repository.NewFirebaseGateway(cfg.Store.FirebaseURL, cfg.Store.FirebaseSecret, logger), nil
	case "memory":
		return repository.NewMemoryGateway(), nil
	default:
		gw, err := repository.NewPostgresGateway(cfg.Database.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect postgres: %w", err)
		}
		return gw, nil
	}
}

// Start 启动服务（阻塞直到 ctx 取消或 HTTP 服务出错）
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service",
		zap.String("addr", s.config.HTTP.Addr),
		zap.String("store_backend", s.config.Store.Backend),
	)

	// 事件日志批量清理
	go s.pruneLoop(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	}
}

func (s *MonitorService) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Monitor.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.engine.Prune(time.Now().Add(-s.config.Monitor.Retention))
		}
	}
}

// Stop 优雅停止：先停会话与心跳，再关 HTTP 与基础设施连接
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping monitor service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.registry.Shutdown(shutdownCtx)
	s.heartbeat.Shutdown()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shut down http server", zap.Error(err))
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
	if err := s.gateway.Close(); err != nil {
		s.logger.Error("Failed to close persistence gateway", zap.Error(err))
	}
	return nil
}
