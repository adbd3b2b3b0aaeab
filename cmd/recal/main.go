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

// recal 离线重校准：读取 API 进程落盘的路由事件，重拟合 Platt 参数，
// ECE 达标时原子写出校准文件，API 进程下次启动（或热加载）时生效。
// 使用：go run ./cmd/recal -once 或 -schedule "0 3 * * *"。
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"islander-chat/internal/router"
	"islander-chat/pkg/config"
)

func main() {
	var (
		configPath = flag.String("config", "configs/orchestrator.yaml", "配置文件路径")
		once       = flag.Bool("once", false, "只跑一次后退出")
		schedule   = flag.String("schedule", "0 3 * * *", "cron 表达式（分 时 日 月 周）")
	)
	flag.Parse()

	if env := os.Getenv("CONFIG_PATH"); env != "" && *configPath == "configs/orchestrator.yaml" {
		*configPath = env
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Router.EventsFile == "" {
		log.Fatal("router.events_file 未配置，无事件可供重校准")
	}
	if cfg.Router.CalibrationFile == "" {
		log.Fatal("router.calibration_file 未配置，无输出位置")
	}

	if *once {
		if err := recalibrate(cfg); err != nil {
			log.Fatalf("重校准失败: %v", err)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		if err := recalibrate(cfg); err != nil {
			log.Printf("重校准失败: %v", err)
		}
	}); err != nil {
		log.Fatalf("无效的 cron 表达式 %q: %v", *schedule, err)
	}
	c.Start()
	log.Printf("重校准任务已启动, schedule=%q events=%s", *schedule, cfg.Router.EventsFile)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	<-c.Stop().Done()
}

// recalibrate 读事件→拟合→ECE 门槛→原子写出
func recalibrate(cfg *config.Config) error {
	events, err := router.ReadEventsFile(cfg.Router.EventsFile)
	if err != nil {
		return fmt.Errorf("读取事件文件: %w", err)
	}
	if cfg.Router.EventWindow > 0 && len(events) > cfg.Router.EventWindow {
		events = events[len(events)-cfg.Router.EventWindow:]
	}

	current := router.Calibration{A: cfg.Router.Calibration.A, B: cfg.Router.Calibration.B}
	if prev, err := router.LoadCalibrationFile(cfg.Router.CalibrationFile); err == nil {
		current = prev
	}

	fitted := router.Fit(events, current)
	if fitted == current {
		log.Printf("事件不足或拟合无改变, events=%d", len(events))
		return nil
	}
	ece := router.ECE(events, fitted, 10)
	if ece > cfg.Router.Calibration.MaxECE {
		log.Printf("ECE %.4f 超过门槛 %.4f, 保留现有参数", ece, cfg.Router.Calibration.MaxECE)
		return nil
	}
	if err := router.SaveCalibrationFile(cfg.Router.CalibrationFile, fitted); err != nil {
		return fmt.Errorf("写出校准文件: %w", err)
	}
	log.Printf("校准参数已写出 a=%.4f b=%.4f ece=%.4f events=%d", fitted.A, fitted.B, ece, len(events))
	return nil
}
