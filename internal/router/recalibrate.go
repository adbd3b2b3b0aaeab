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

package router

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/renameio/v2"

	"islander-chat/pkg/log"
	"islander-chat/pkg/metrics"
)

const eceBins = 10

// Recalibrator 热路径外的周期性自评估：在滚动事件窗口上重拟合校准参数，
// ECE 达标时原子换入，否则保留当前参数。
type Recalibrator struct {
	router *Router
	events *EventLog
	every  time.Duration
	maxECE float64
	log    *log.Logger
}

// NewRecalibrator 创建重校准任务；maxECE <= 0 时取 0.05
func NewRecalibrator(r *Router, events *EventLog, every time.Duration, maxECE float64, logger *log.Logger) *Recalibrator {
	if maxECE <= 0 {
		maxECE = 0.05
	}
	return &Recalibrator{router: r, events: events, every: every, maxECE: maxECE, log: logger}
}

// Run 阻塞运行直到 ctx 取消；every <= 0 时直接返回
func (rc *Recalibrator) Run(ctx context.Context) {
	if rc.every <= 0 {
		return
	}
	ticker := time.NewTicker(rc.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rc.RunOnce()
		}
	}
}

// RunOnce 执行一次重校准；返回是否换入了新参数
func (rc *Recalibrator) RunOnce() bool {
	window := rc.events.Window()
	current := rc.router.Calibration()
	fitted := Fit(window, current)
	ece := ECE(window, fitted, eceBins)
	metrics.CalibrationECE.Set(ece)

	if fitted == current {
		return false
	}
	if ece > rc.maxECE {
		rc.log.Warn("重校准结果未达 ECE 门槛，保留当前参数",
			"ece", ece, "max_ece", rc.maxECE, "events", len(window))
		return false
	}
	if err := rc.router.SwapCalibration(fitted); err != nil {
		rc.log.Warn("重校准参数被拒绝", "error", err)
		return false
	}
	rc.log.Info("校准参数已更新", "a", fitted.A, "b", fitted.B, "ece", ece, "events", len(window))
	return true
}

// LoadCalibrationFile 读取离线重校准输出；文件缺失返回 (zero, os.ErrNotExist)
func LoadCalibrationFile(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, err
	}
	var c Calibration
	if err := json.Unmarshal(data, &c); err != nil {
		return Calibration{}, err
	}
	if err := c.Valid(); err != nil {
		return Calibration{}, err
	}
	return c, nil
}

// SaveCalibrationFile 原子写入校准参数
func SaveCalibrationFile(path string, c Calibration) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0644)
}
