// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api 装配 API 进程：路由器、上下文管理、策略引擎、Supervisor 与 HTTP 服务。
package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"islander-chat/internal/api/http"
	"islander-chat/internal/api/http/middleware"
	"islander-chat/internal/app"
	"islander-chat/internal/contextflow"
	"islander-chat/internal/offers"
	"islander-chat/internal/policy"
	"islander-chat/internal/router"
	"islander-chat/internal/session"
	"islander-chat/internal/supervisor"
	"islander-chat/pkg/config"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用：持有装配完成的 Supervisor 与 HTTP 服务
type App struct {
	bootstrap    *app.Bootstrap
	sup          *supervisor.Supervisor
	events       *router.EventLog
	recalibrator *router.Recalibrator
	followups    *supervisor.FollowupQueue
	httpRouter   *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown

	bgCancel context.CancelFunc
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config
	logger := bootstrap.Logger

	sessions := session.NewManager(bootstrap.SnapshotStore, logger)

	events, err := router.NewEventLog(cfg.Router.EventWindow, cfg.Router.EventsFile)
	if err != nil {
		return nil, fmt.Errorf("初始化路由事件日志失败: %w", err)
	}
	classifier := router.NewLexicalClassifier(cfg.Domains)
	rt := router.New(cfg.Router, cfg.Domains, classifier, events, logger)

	// 离线重校准输出存在时在启动期加载，优于配置内的初始参数
	if cfg.Router.CalibrationFile != "" {
		if calib, err := router.LoadCalibrationFile(cfg.Router.CalibrationFile); err == nil {
			if err := rt.SwapCalibration(calib); err != nil {
				logger.Warn("校准文件参数被拒绝", "path", cfg.Router.CalibrationFile, "error", err)
			} else {
				logger.Info("已加载校准文件", "path", cfg.Router.CalibrationFile, "a", calib.A, "b", calib.B)
			}
		} else if !os.IsNotExist(err) {
			logger.Warn("校准文件读取失败", "path", cfg.Router.CalibrationFile, "error", err)
		}
	}

	memTimeout := config.ParseDuration(cfg.Supervisor.MemoryTimeout, 3*time.Second)
	breakerReset := config.ParseDuration(cfg.Supervisor.BreakerReset, 30*time.Second)
	memBreaker := supervisor.NewBreaker("memory", cfg.Supervisor.BreakerThreshold, breakerReset)
	guardedMemory := supervisor.GuardMemory(bootstrap.MemoryStore, memBreaker, memTimeout)

	contexts := contextflow.NewManager(cfg.Context, guardedMemory, nil, logger, memTimeout)

	cache, err := offers.NewCache(cfg.Offers, cfg.Domains, bootstrap.Inventory)
	if err != nil {
		return nil, fmt.Errorf("初始化报盘缓存失败: %w", err)
	}
	offerTimeout := config.ParseDuration(cfg.Supervisor.OfferTimeout, 3*time.Second)
	offerBreaker := supervisor.NewBreaker("offers", cfg.Supervisor.BreakerThreshold, breakerReset)
	guardedOffers := supervisor.GuardOffers(cache, offerBreaker, offerTimeout)

	engine := policy.NewEngine(cfg.Domains, guardedOffers, logger)

	registry := supervisor.NewCapabilityRegistry(cfg.Supervisor.DisableAfter)
	followups := supervisor.NewFollowupQueue(cfg.Supervisor.FollowupQueue, cfg.Supervisor.FollowupRetries, logger)

	sup := supervisor.New(cfg.Supervisor, sessions, rt, contexts, engine, guardedMemory,
		registry, followups, logger)

	every := config.ParseDuration(cfg.Router.RecalibrateEvery, 0)
	recal := router.NewRecalibrator(rt, events, every, cfg.Router.Calibration.MaxECE, logger)

	handler := http.NewHandler(sup, registry, logger)
	httpRouter := http.NewRouter(handler, middleware.NewMiddleware())
	httpRouter.RateLimit = cfg.API.RateLimit

	return &App{
		bootstrap:    bootstrap,
		sup:          sup,
		events:       events,
		recalibrator: recal,
		followups:    followups,
		httpRouter:   httpRouter,
	}, nil
}

// Run 启动后台任务与 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	cfg := a.bootstrap.Config
	a.bootstrap.Logger.Info("对话编排服务启动", "addr", addr)

	// Hertz 日志走 slog 扩展，与进程日志配置对齐
	output := os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	switch cfg.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	bgCtx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel
	a.followups.Start(bgCtx)
	go a.recalibrator.Run(bgCtx)

	// 可选：启用链路追踪（OpenTelemetry）
	if cfg.Monitoring.Tracing.Enable {
		serviceName := cfg.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "islander-chat"
		}
		exportEndpoint := cfg.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if cfg.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
			tracerOpt, tcfg := hertztracing.NewServerTracer()
			a.hertz = a.httpRouter.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tcfg))
			a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		} else {
			a.hertz = a.httpRouter.Build(addr)
		}
	} else {
		a.hertz = a.httpRouter.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭：停后台任务、HTTP 服务与存储连接
func (a *App) Shutdown(ctx context.Context) error {
	if a.bgCancel != nil {
		a.bgCancel()
	}
	a.followups.Stop()
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	if err := a.sup.Close(); err != nil {
		return err
	}
	if err := a.events.Close(); err != nil {
		return err
	}
	return a.bootstrap.Close()
}
